package cities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybotdev/skybot/internal/domain"
)

func TestLoadHasAllTenCities(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	all := r.All()
	assert.Len(t, all, 10)

	for _, code := range Codes {
		city, err := r.Get(code)
		require.NoError(t, err)
		assert.Equal(t, code, city.Code)
		assert.NotEmpty(t, city.Timezone)
		assert.NotEmpty(t, city.ForecastOffice)
		assert.NotEmpty(t, city.SettlementStation)
	}
}

func TestClusterAssignments(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	want := map[string]domain.Cluster{
		"NYC": domain.ClusterNE,
		"PHL": domain.ClusterNE,
		"BOS": domain.ClusterNE,
		"MIA": domain.ClusterSE,
		"AUS": domain.ClusterSE,
		"CHI": domain.ClusterMidwest,
		"DEN": domain.ClusterMountain,
		"LAX": domain.ClusterWest,
		"SEA": domain.ClusterWest,
		"SFO": domain.ClusterWest,
	}
	for code, cluster := range want {
		assert.Equal(t, cluster, r.ClusterOf(code), code)
	}
}

func TestGetUnknownCity(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	_, err = r.Get("ZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
