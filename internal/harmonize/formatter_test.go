package harmonize

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/pgs-harmonizer/internal/allele"
	"github.com/inodb/pgs-harmonizer/internal/scorefile"
)

var testColumns = []string{"rsID", "chr_name", "chr_position", "effect_allele", "other_allele", "effect_weight", "locus_name", "hm_chr"}

func format(t *testing.T, f *Formatter, v *Variant) []string {
	t.Helper()
	row, err := f.Format(v)
	require.NoError(t, err)
	return row
}

func testRecord(values ...string) scorefile.Record {
	return scorefile.NewRecord(1, testColumns, values)
}

func TestFormatter_Columns(t *testing.T) {
	f := NewFormatter(testColumns, FormatOptions{})
	want := []string{"chr_name", "chr_position", "variant_id", "effect_allele", "other_allele", "effect_weight", "hm_code", "hm_info", "locus_name"}
	if diff := cmp.Diff(want, f.Columns()); diff != "" {
		t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormat_Pass(t *testing.T) {
	v := NewVariant(testRecord("rs1", "11", "69331418", "A", "G", "0.16220387987485377", "CCND1", "ignored"))
	v.Source = SourceEnsembl
	v.Status = StatusExact
	v.HmChr, v.HmPos = "11", "69564250"
	v.HmRsID = "rs99"
	v.HmVID = "11:69564250:A:G"

	f := NewFormatter(testColumns, FormatOptions{ReportedBuild: "GRCh37"})
	want := []string{"11", "69564250", "rs99", "A", "G", "0.16220387987485377", "5",
		`{"hm_source": "ENSEMBL", "previous_rsID": "rs1"}`, "CCND1"}
	if diff := cmp.Diff(want, format(t, f, v)); diff != "" {
		t.Errorf("Format() mismatch (-want +got):\n%s", diff)
	}

	f = NewFormatter(testColumns, FormatOptions{VariantID: VariantIDFromReference})
	want = []string{"11", "69564250", "11:69564250:A:G", "A", "G", "0.16220387987485377", "5",
		`{"hm_source": "ENSEMBL", "previous_rsID": "rs1", "rsID": "rs99"}`, "CCND1"}
	if diff := cmp.Diff(want, format(t, f, v)); diff != "" {
		t.Errorf("Format() reference mode mismatch (-want +got):\n%s", diff)
	}
}

func TestFormat_PassMissingValues(t *testing.T) {
	cols := []string{"chr_name", "chr_position", "effect_allele", "effect_weight"}
	v := NewVariant(scorefile.NewRecord(1, cols, []string{"1", "100", "A", "0.1"}))
	v.Source = SourceLiftover
	v.Status = StatusLiftover
	v.HmChr, v.HmPos = "1", "200"

	f := NewFormatter(cols, FormatOptions{})
	row := format(t, f, v)
	assert.Equal(t, MissingValue, row[idxOtherAllele], "absent other allele")
	assert.Equal(t, MissingValue, row[idxVariantID], "no rsID column")
	assert.Equal(t, "2", row[idxHmCode])
	assert.Equal(t, `{"hm_source": "liftover"}`, row[idxHmInfo])
}

func TestFormat_AmbiguousLiftoverPasses(t *testing.T) {
	v := NewVariant(testRecord("rs5", "1", "1", "C", "T", "0.2", "L", ""))
	v.Source = SourceLiftover
	v.Status = StatusLiftoverAmbiguous
	v.HmChr, v.HmPos, v.HmRsID = "1", "101", "rs5"

	row := format(t, NewFormatter(testColumns, FormatOptions{}), v)
	assert.Equal(t, "3", row[idxHmCode])
	assert.Equal(t, "101", row[idxChrPosition])
	assert.Equal(t, `{"hm_source": "liftover", "ambiguity": "multiple_liftover_targets"}`, row[idxHmInfo])
}

func TestFormat_FailUnmapped(t *testing.T) {
	v := NewVariant(testRecord("rs7", "1", "50", "A", "G", "0.5", "LOCUS", ""))
	v.Source = SourceLiftover

	f := NewFormatter(testColumns, FormatOptions{ReportedBuild: "GRCh37"})
	want := []string{"", "", ".", "", "", "0.5", "-1",
		`{"hm_source": "liftover", "reported_build": "GRCh37", "rsID": "rs7", "effect_allele": "A", "other_allele": "G", "reported_chr_name": "1", "reported_chr_position": 50}`,
		"LOCUS"}
	if diff := cmp.Diff(want, format(t, f, v)); diff != "" {
		t.Errorf("Format() mismatch (-want +got):\n%s", diff)
	}
}

func TestFormat_FailRecordsAssumedBuild(t *testing.T) {
	v := NewVariant(testRecord("rs7", "1", "50", "A", "G", "0.5", "LOCUS", ""))
	v.Source = SourceLiftover

	f := NewFormatter(testColumns, FormatOptions{ReportedBuild: "NR", AssumedBuild: "GRCh37"})
	assert.Equal(t,
		`{"hm_source": "liftover", "reported_build": "NR", "assumed_build": "GRCh37", "rsID": "rs7", "effect_allele": "A", "other_allele": "G", "reported_chr_name": "1", "reported_chr_position": 50}`,
		format(t, f, v)[idxHmInfo])

	// Same as reported: nothing extra.
	f = NewFormatter(testColumns, FormatOptions{ReportedBuild: "GRCh37", AssumedBuild: "GRCh37"})
	assert.NotContains(t, format(t, f, v)[idxHmInfo], "assumed_build")
}

func TestFormat_FailKeepsDiscoveredValues(t *testing.T) {
	v := NewVariant(testRecord("rs8", "2", "500", "A", "C", "-0.3", "X", ""))
	v.Source = SourceEnsembl
	v.Status = StatusUnvalidated
	v.HmChr, v.HmPos = "2", "700"
	v.HmRsID = "rs80"
	v.HmVID = "2:700:G:T"

	row := format(t, NewFormatter(testColumns, FormatOptions{}), v)
	assert.Equal(t, "-5", row[idxHmCode])
	assert.Equal(t,
		`{"hm_source": "ENSEMBL", "reported_build": "NR", "rsID": "rs80", "previous_rsID": "rs8", "hm_chr": "2", "hm_pos": 700, "variant_id": "2:700:G:T", "effect_allele": "A", "other_allele": "C"}`,
		row[idxHmInfo])
}

func TestFormat_FailBlanksOnlyCoreColumns(t *testing.T) {
	input := []string{"rs9", "3", "900", "G", "A", "1.5e-3", "MYLOCUS", "x"}
	v := NewVariant(testRecord(input...))

	f := NewFormatter(testColumns, FormatOptions{})
	row := format(t, f, v)
	for _, i := range []int{idxChrName, idxChrPosition, idxEffectAllele, idxOtherAllele} {
		assert.Equal(t, "", row[i], f.Columns()[i])
	}
	assert.Equal(t, MissingValue, row[idxVariantID])
	assert.Equal(t, "1.5e-3", row[idxEffectWeight])
	assert.Equal(t, "MYLOCUS", row[len(coreColumns)])
}

func TestFormat_StrandFlipScenario(t *testing.T) {
	cols := []string{"chr_name", "chr_position", "effect_allele", "other_allele", "effect_weight"}
	v := NewVariant(scorefile.NewRecord(1, cols, []string{"1", "100", "A", "T", "0.1"}))
	v.Source = SourceEnsembl
	v.Status = Classify(true, false, true, v.Alleles())
	v.HmChr, v.HmPos = "1", "120"
	require.Equal(t, -4, v.Status.Code())

	require.True(t, FixStrandFlip(v))
	assert.Equal(t, "T", v.EffectAllele)
	assert.Equal(t, "A", v.OtherAllele)

	row := format(t, NewFormatter(cols, FormatOptions{ReportedBuild: "GRCh37"}), v)
	assert.Equal(t, "T", row[idxEffectAllele])
	assert.Equal(t, "A", row[idxOtherAllele])
	assert.Equal(t, "-4", row[idxHmCode])
	assert.Equal(t,
		`{"hm_source": "ENSEMBL", "fixedStrandFlip": true, "reported_effect_allele": "A", "reported_other_allele": "T"}`,
		row[idxHmInfo])
}

func TestFormat_FailedStrandFlip(t *testing.T) {
	cols := []string{"chr_name", "chr_position", "effect_allele", "other_allele", "effect_weight"}
	v := NewVariant(scorefile.NewRecord(1, cols, []string{"1", "100", "A", "N", "0.1"}))
	v.Source = SourceEnsembl
	v.Status = StatusFlipRequired
	v.HmChr, v.HmPos = "1", "120"

	assert.False(t, FixStrandFlip(v))
	row := format(t, NewFormatter(cols, FormatOptions{ReportedBuild: "GRCh37"}), v)
	assert.Equal(t, "", row[idxEffectAllele])
	assert.Equal(t, MissingValue, row[idxVariantID])
	assert.Equal(t,
		`{"hm_source": "ENSEMBL", "fixedStrandFlip": false, "reported_build": "GRCh37", "hm_chr": "1", "hm_pos": 120, "effect_allele": "A", "other_allele": "N"}`,
		row[idxHmInfo])
}

func TestFormat_FlippedAlleleIsReverseComplement(t *testing.T) {
	cols := []string{"effect_allele", "other_allele", "effect_weight"}
	f := NewFormatter(cols, FormatOptions{})
	for _, pair := range [][2]string{{"A", "G"}, {"CT", "C"}, {"G", "GTTA"}, {"T", "C"}} {
		v := NewVariant(scorefile.NewRecord(1, cols, []string{pair[0], pair[1], "1"}))
		v.Source = SourceEnsembl
		v.Status = StatusFlipRequired
		FixStrandFlip(v)

		row := format(t, f, v)
		rc, ok := allele.ReverseComplement(pair[0])
		require.True(t, ok)
		assert.Equal(t, rc, row[idxEffectAllele])
		var info map[string]any
		require.NoError(t, json.Unmarshal([]byte(row[idxHmInfo]), &info))
		assert.Equal(t, pair[0], info["reported_effect_allele"])
		assert.Equal(t, true, info["fixedStrandFlip"])
	}
}

func TestParseVariantIDSource(t *testing.T) {
	s, err := ParseVariantIDSource("rsid")
	require.NoError(t, err)
	assert.Equal(t, VariantIDFromRsID, s)

	s, err = ParseVariantIDSource("Reference")
	require.NoError(t, err)
	assert.Equal(t, VariantIDFromReference, s)
	assert.Equal(t, "reference", s.String())

	_, err = ParseVariantIDSource("hgvs")
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	in := Info{}
	in.Set("b", 1)
	in.Set("a", "<DEL>")
	in.Set("b", true)
	assert.Equal(t, []string{"b", "a"}, in.Keys())
	b, err := in.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"b": true, "a": "<DEL>"}`, string(b))

	b, err = Info{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}

func TestInfo_EncodeErrorIsReturned(t *testing.T) {
	in := Info{{Key: "hm_source", Value: "ENSEMBL"}, {Key: "bad", Value: make(chan int)}}
	_, err := in.MarshalJSON()
	assert.Error(t, err)
}
