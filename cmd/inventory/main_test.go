package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udaykiran1867/tce-project1/internal/app"
	_ "github.com/udaykiran1867/tce-project1/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
