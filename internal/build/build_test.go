package build

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Build
		ok   bool
	}{
		{"GRCh38", Hg38, true},
		{"GRCh37", Hg19, true},
		{"NCBI36", Hg18, true},
		{"NCBI35", Hg17, true},
		{"NCBI34", Hg16, true},
		{"hg19", Hg19, true},
		{"hg38", Hg38, true},
		{"grch37", Hg19, true},
		{"HG38", Hg38, true},
		{" GRCh38 ", Hg38, true},
		{"GRCh39", "", false},
		{"NR", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	p, err := Resolve("GRCh37", "hg38")
	require.NoError(t, err)
	assert.Equal(t, Pair{Source: Hg19, Target: Hg38}, p)
	assert.False(t, p.Identity())

	p, err = Resolve("hg19", "GRCh37")
	require.NoError(t, err)
	assert.True(t, p.Identity())
}

func TestResolve_UnknownSource(t *testing.T) {
	_, err := Resolve("hg99", "GRCh38")
	require.Error(t, err)

	var ube *UnknownBuildError
	require.True(t, errors.As(err, &ube))
	assert.Equal(t, Source, ube.Side)
	assert.Equal(t, "hg99", ube.Value)
	assert.Equal(t, `unknown source genome build: "hg99"`, err.Error())
}

func TestResolve_UnknownDestination(t *testing.T) {
	_, err := Resolve("GRCh37", "T2T")
	require.Error(t, err)

	var ube *UnknownBuildError
	require.True(t, errors.As(err, &ube))
	assert.Equal(t, Destination, ube.Side)
	assert.Equal(t, "T2T", ube.Value)
	assert.Contains(t, err.Error(), "destination")
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("GRCh38", "hg38"))
	assert.True(t, Equal("NCBI36", "hg18"))
	assert.False(t, Equal("GRCh37", "GRCh38"))
	assert.False(t, Equal("bogus", "bogus"))
}

func TestRelease(t *testing.T) {
	assert.Equal(t, "GRCh37", Release(Hg19))
	assert.Equal(t, "GRCh38", Release(Hg38))
	assert.Equal(t, "", Release(Build("hg99")))
}

func TestIsReported(t *testing.T) {
	assert.True(t, IsReported("GRCh37"))
	assert.False(t, IsReported("NR"))
	assert.False(t, IsReported(""))
}
