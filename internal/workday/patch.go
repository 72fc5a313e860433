package workday

import "github.com/agng-dev/montron/internal/model"

// TBPatch and RSPatch are minimal partial-update payloads. A key that is
// absent means "no change"; a key present with a nil value means "clear the
// field". Marshalling a map keeps that distinction on the wire, which pointer
// struct fields cannot express.
type TBPatch map[string]any

type RSPatch map[string]any

// TBPatchKeys lists the fixed daily-report attributes in layout order.
var TBPatchKeys = []string{
	"startTime", "endTime", "breakMinutes", "travelMinutes",
	"licensePlate", "department", "overnight", "kmStart", "kmEnd", "comment",
}

// RSScalarKeys lists the service-record scalar attributes.
var RSScalarKeys = []string{
	"startTime", "endTime", "breakMinutes", "customerId", "customerName",
}

func (p TBPatch) IsEmpty() bool { return len(p) == 0 }

func (p RSPatch) IsEmpty() bool { return len(p) == 0 }

// BuildTBPatch diffs the ten fixed fields pairwise and emits only the ones
// that changed, carrying the draft's value (which may be nil to clear).
func BuildTBPatch(original, draft *model.DailyReport) TBPatch {
	patch := TBPatch{}
	if original == nil || draft == nil {
		return patch
	}
	for _, key := range TBPatchKeys {
		prev := TBFieldValue(original, key)
		next := TBFieldValue(draft, key)
		if ValuesDiffer(prev, next) {
			patch[key] = next
		}
	}
	for key := range draft.Extra {
		if ValuesDiffer(original.Extra[key], draft.Extra[key]) {
			patch[key] = draft.Extra[key]
		}
	}
	for key := range original.Extra {
		if _, ok := draft.Extra[key]; !ok {
			patch[key] = nil
		}
	}
	return patch
}

// BuildRSPatch diffs the five scalar fields plus the positions list. A
// changed list is replaced wholesale: the patch carries the entire draft
// positions slice, never a per-index delta.
func BuildRSPatch(original, draft *model.ServiceRecord) RSPatch {
	patch := RSPatch{}
	if original == nil || draft == nil {
		return patch
	}
	for _, key := range RSScalarKeys {
		prev := RSFieldValue(original, key)
		next := RSFieldValue(draft, key)
		if ValuesDiffer(prev, next) {
			patch[key] = next
		}
	}
	if PositionsDiffer(original.Positions, draft.Positions) {
		positions := draft.Positions
		if positions == nil {
			positions = []model.Position{}
		}
		patch["positions"] = positions
	}
	return patch
}

// PositionsDiffer compares two position lists structurally: differing length
// means changed, otherwise any pairwise field difference at the same index.
func PositionsDiffer(original, draft []model.Position) bool {
	if len(original) != len(draft) {
		return true
	}
	for i := range original {
		a, b := original[i], draft[i]
		if ValuesDiffer(strVal(a.Code), strVal(b.Code)) ||
			ValuesDiffer(strVal(a.Description), strVal(b.Description)) ||
			ValuesDiffer(floatVal(a.Hours), floatVal(b.Hours)) ||
			ValuesDiffer(floatVal(a.Quantity), floatVal(b.Quantity)) ||
			ValuesDiffer(strVal(a.Unit), strVal(b.Unit)) ||
			ValuesDiffer(floatVal(a.PricePerUnit), floatVal(b.PricePerUnit)) {
			return true
		}
	}
	return false
}
