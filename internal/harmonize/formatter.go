package harmonize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/inodb/pgs-harmonizer/internal/build"
	"github.com/inodb/pgs-harmonizer/internal/scorefile"
)

// MissingValue marks a field that is explicitly not applicable. Blank
// fields are written as "".
const MissingValue = "."

// Output column names besides the scoring file columns.
const (
	ColVariantID = "variant_id"
	ColHmCode    = "hm_code"
	ColHmInfo    = "hm_info"
)

// coreColumns are always written first, in this order.
var coreColumns = []string{
	scorefile.ColChrName,
	scorefile.ColChrPosition,
	ColVariantID,
	scorefile.ColEffectAllele,
	scorefile.ColOtherAllele,
	scorefile.ColEffectWeight,
	ColHmCode,
	ColHmInfo,
}

const (
	idxChrName = iota
	idxChrPosition
	idxVariantID
	idxEffectAllele
	idxOtherAllele
	idxEffectWeight
	idxHmCode
	idxHmInfo
)

// VariantIDSource selects what is written to the variant_id column.
type VariantIDSource int

const (
	// VariantIDFromRsID writes the resolved rsID.
	VariantIDFromRsID VariantIDSource = iota
	// VariantIDFromReference writes the location-based identifier of the
	// reference record and moves the rsID into hm_info.
	VariantIDFromReference
)

// ParseVariantIDSource parses "rsid" or "reference".
func ParseVariantIDSource(s string) (VariantIDSource, error) {
	switch strings.ToLower(s) {
	case "", "rsid":
		return VariantIDFromRsID, nil
	case "reference", "vcf":
		return VariantIDFromReference, nil
	}
	return 0, fmt.Errorf("unknown variant_id source %q (want rsid or reference)", s)
}

func (s VariantIDSource) String() string {
	if s == VariantIDFromReference {
		return "reference"
	}
	return "rsid"
}

// FormatOptions configures a Formatter.
type FormatOptions struct {
	VariantID VariantIDSource
	// ReportedBuild is the author-reported build recorded for failed
	// variants; "" is written as NR.
	ReportedBuild string
	// AssumedBuild is a source build supplied in place of the reported
	// one. Failed variants record it next to reported_build.
	AssumedBuild string
}

// Formatter renders harmonized variants as output rows. The column schema
// is resolved once from the input columns.
type Formatter struct {
	columns []string
	extras  []string
	hasRsID bool
	opts    FormatOptions
}

// NewFormatter creates a formatter for a file with the given input columns.
// Input columns that are not core columns, not rsID and not prefixed with
// "hm_" are passed through after the core columns.
func NewFormatter(inputColumns []string, opts FormatOptions) *Formatter {
	f := &Formatter{opts: opts}
	core := make(map[string]bool, len(coreColumns))
	for _, c := range coreColumns {
		core[c] = true
	}

	f.columns = append(f.columns, coreColumns...)
	for _, c := range inputColumns {
		if c == scorefile.ColRsID {
			f.hasRsID = true
			continue
		}
		if core[c] || strings.HasPrefix(c, "hm_") {
			continue
		}
		f.columns = append(f.columns, c)
		f.extras = append(f.extras, c)
	}
	return f
}

// Columns returns the output column names.
func (f *Formatter) Columns() []string {
	return f.columns
}

// Format renders one variant. Passing variants carry their harmonized
// values. Failing variants have blank coordinate and allele columns, a
// missing variant_id, and whatever was discovered recorded in hm_info.
// Effect weight and pass-through columns are always copied verbatim.
// An error means hm_info could not be encoded.
func (f *Formatter) Format(v *Variant) ([]string, error) {
	row := make([]string, len(f.columns))
	info := Info{}
	info.Set("hm_source", v.Source)
	if amb := v.Status.Ambiguity(); amb != "" {
		info.Set("ambiguity", amb)
	}
	if v.Status == StatusFlipRequired {
		switch {
		case v.FlipFixed:
			info.Set("fixedStrandFlip", true)
			info.Set("reported_effect_allele", v.ReportedEffectAllele)
			if v.HasOther {
				info.Set("reported_other_allele", v.ReportedOtherAllele)
			}
		case v.FlipAttempted:
			info.Set("fixedStrandFlip", false)
		}
	}

	if v.Passed() {
		f.formatPass(v, row, &info)
	} else {
		f.formatFail(v, row, &info)
	}

	row[idxEffectWeight] = v.Record.Get(scorefile.ColEffectWeight)
	row[idxHmCode] = strconv.Itoa(v.Status.Code())
	hmInfo, err := info.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode hm_info: %w", err)
	}
	row[idxHmInfo] = string(hmInfo)
	for i, c := range f.extras {
		row[len(coreColumns)+i] = v.Record.Get(c)
	}
	return row, nil
}

func (f *Formatter) formatPass(v *Variant, row []string, info *Info) {
	row[idxChrName] = v.HmChr
	row[idxChrPosition] = v.HmPos
	row[idxEffectAllele] = v.EffectAllele
	row[idxOtherAllele] = MissingValue
	if v.HasOther {
		row[idxOtherAllele] = v.OtherAllele
	}

	if f.opts.VariantID == VariantIDFromReference {
		row[idxVariantID] = v.HmVID
	}
	if f.hasRsID && v.HmRsID != "" {
		if old, ok := v.Record.Value(scorefile.ColRsID); ok && old != v.HmRsID {
			info.Set("previous_rsID", old)
		}
		if f.opts.VariantID == VariantIDFromRsID {
			row[idxVariantID] = v.HmRsID
		} else {
			info.Set("rsID", v.HmRsID)
		}
	}
	if row[idxVariantID] == "" {
		row[idxVariantID] = MissingValue
	}
}

func (f *Formatter) formatFail(v *Variant, row []string, info *Info) {
	reported := f.opts.ReportedBuild
	if !build.IsReported(reported) {
		reported = build.NotReported
	}
	info.Set("reported_build", reported)
	if a := f.opts.AssumedBuild; a != "" && a != reported {
		info.Set("assumed_build", a)
	}

	if f.hasRsID {
		old, hasOld := v.Record.Value(scorefile.ColRsID)
		switch {
		case v.HmRsID != "":
			info.Set("rsID", v.HmRsID)
			if hasOld && old != v.HmRsID {
				info.Set("previous_rsID", old)
			}
		case hasOld:
			info.Set("rsID", old)
		}
	}

	if v.HmChr != "" {
		info.Set("hm_chr", v.HmChr)
	}
	if v.HmPos != "" {
		info.Set("hm_pos", positionValue(v.HmPos))
	}
	if v.HmVID != "" {
		info.Set("variant_id", v.HmVID)
	}
	if v.EffectAllele != "" && !scorefile.IsMissing(v.EffectAllele) {
		info.Set("effect_allele", v.EffectAllele)
	}
	if v.HasOther {
		info.Set("other_allele", v.OtherAllele)
	}
	// Keep the reported coordinate recoverable when nothing was mapped.
	if v.HmChr == "" && v.HmPos == "" {
		if chr, ok := v.Record.Value(scorefile.ColChrName); ok {
			info.Set("reported_chr_name", chr)
		}
		if pos, ok := v.Record.Value(scorefile.ColChrPosition); ok {
			info.Set("reported_chr_position", positionValue(pos))
		}
	}

	row[idxVariantID] = MissingValue
}

// positionValue renders integral positions as JSON numbers.
func positionValue(pos string) any {
	if n, err := strconv.ParseInt(pos, 10, 64); err == nil {
		return n
	}
	return pos
}
