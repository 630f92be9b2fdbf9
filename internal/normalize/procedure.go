package normalize

import (
	"strings"

	"github.com/sells-group/repreneur-cli/internal/model"
)

// ParseProcedure maps insolvency text (BODACC judgement natures, registry
// procedure types, listing sections) to a status.
func ParseProcedure(s string) model.ProcedureStatus {
	f := Fold(s)
	if f == "" {
		return model.ProcedureNone
	}

	switch {
	case strings.Contains(f, "extinction du passif"),
		strings.Contains(f, "cloture") && strings.Contains(f, "plan") && !strings.Contains(f, "liquidation"),
		strings.Contains(f, "mettant fin") && !strings.Contains(f, "liquidation"):
		return model.ProcedureNone
	case strings.Contains(f, "liquidation"):
		return model.ProcedureJudicialLiquidation
	case strings.Contains(f, "plan de cession"):
		return model.ProcedureCollectiveOpen
	// A rescinded plan that opens a new proceeding is an opening, whatever
	// plan it names.
	case strings.Contains(f, "resolution du plan") &&
		(strings.Contains(f, "ouvrant") || strings.Contains(f, "ouverture") || strings.Contains(f, "redressement judiciaire")):
		return model.ProcedureCollectiveOpen
	case strings.Contains(f, "plan de continuation"),
		strings.Contains(f, "plan de redressement"),
		strings.Contains(f, "plan de sauvegarde"),
		strings.Contains(f, "arrete du plan"),
		strings.Contains(f, "arretant le plan"),
		strings.Contains(f, "modification du plan"):
		return model.ProcedureRecoveryPlan
	case strings.Contains(f, "redressement"),
		strings.Contains(f, "sauvegarde"),
		strings.Contains(f, "procedure collective"),
		strings.Contains(f, "ouverture"):
		return model.ProcedureCollectiveOpen
	default:
		return model.ProcedureNone
	}
}
