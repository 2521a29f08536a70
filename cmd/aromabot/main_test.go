package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/aromabot/core/config"
)

func TestBuildDatabaseConfigCarriesEveryField(t *testing.T) {
	in := coreconfig.DatabaseConfig{
		Host:           "db.internal",
		Port:           "5433",
		User:           "aroma",
		Password:       "secret",
		Name:           "aromabot",
		SSLMode:        "require",
		MaxConnections: 6,
	}

	out := buildDatabaseConfig(in)

	require.Equal(t, in.Host, out.Host)
	require.Equal(t, in.Port, out.Port)
	require.Equal(t, in.User, out.User)
	require.Equal(t, in.Password, out.Password)
	require.Equal(t, in.Name, out.Name)
	require.Equal(t, in.SSLMode, out.SSLMode)
	require.Equal(t, in.MaxConnections, out.MaxConnections)
}
