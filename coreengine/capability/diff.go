package capability

import (
	"github.com/jeeves-cluster-organization/selene/coreengine/contract"
)

// DiagnosticNotDerivable is emitted when re-derivation itself refuses, so no
// supplied result can match.
const DiagnosticNotDerivable = "expected_result_not_derivable"

// Field compares one field of two sequence elements.
type Field[C any] struct {
	Name string
	Same func(expected, actual C) bool
}

// FieldOf builds a Field from an accessor of a comparable value.
func FieldOf[C any, V comparable](name string, get func(C) V) Field[C] {
	return Field[C]{
		Name: name,
		Same: func(expected, actual C) bool { return get(expected) == get(actual) },
	}
}

// DiffValue appends "<name>_mismatch" when expected != actual.
func DiffValue[T comparable](d *contract.Diagnostics, name string, expected, actual T) bool {
	if expected == actual {
		return false
	}
	d.Add(name + "_mismatch")
	return true
}

// DiffSeq diffs two ordered sequences element by element. It appends
// "<item>_count_mismatch" when lengths differ, then in index order
// "<item>_<i>_<field>_mismatch" for each differing field,
// "<item>_<i>_missing" for expected elements absent from actual and
// "<item>_<i>_unexpected" for surplus actual elements.
func DiffSeq[C any](d *contract.Diagnostics, item string, expected, actual []C, fields ...Field[C]) {
	if len(expected) != len(actual) {
		d.Add(item + "_count_mismatch")
	}
	n := max(len(expected), len(actual))
	for i := 0; i < n; i++ {
		switch {
		case i >= len(actual):
			d.AddIndexed(item, i, "missing")
		case i >= len(expected):
			d.AddIndexed(item, i, "unexpected")
		default:
			for _, f := range fields {
				if !f.Same(expected[i], actual[i]) {
					d.AddIndexed(item, i, f.Name+"_mismatch")
				}
			}
		}
	}
}

// DiffStrings diffs two ordered string sequences.
func DiffStrings(d *contract.Diagnostics, item string, expected, actual []string) {
	DiffSeq(d, item, expected, actual, Field[string]{
		Name: "value",
		Same: func(e, a string) bool { return e == a },
	})
}

// Rederive runs the same derivation the build operation uses and returns
// the expected payload. When derivation refuses, the single
// DiagnosticNotDerivable is recorded and ok is false.
func Rederive[P any](d *contract.Diagnostics, derive func() (P, *contract.Refuse)) (expected P, ok bool) {
	expected, refused := derive()
	if refused != nil {
		d.Add(DiagnosticNotDerivable)
		return expected, false
	}
	return expected, true
}

// Verdict finishes a validate handler: it wraps the collected diagnostics
// in a verdict for op's namespace.
func Verdict(op Op, d *contract.Diagnostics) (contract.Verdict, error) {
	return contract.NewVerdictV1(op.Namespace, d)
}

// Verify is the whole build→re-derive→diff routine for handlers with no
// checks of their own around the diff.
func Verify[P any](
	op Op,
	limit int,
	derive func() (P, *contract.Refuse),
	compare func(d *contract.Diagnostics, expected P),
) (contract.Verdict, error) {
	d := contract.NewDiagnostics(limit)
	if expected, ok := Rederive(d, derive); ok {
		compare(d, expected)
	}
	return Verdict(op, d)
}
