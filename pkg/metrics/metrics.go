package metrics

/*
Labels and so on for metrics used in cicoord.
*/

const (
	Namespace = "cicoord"

	LabelSuccess = "success"
	LabelOutcome = "outcome"
	LabelBackend = "backend"
	LabelMethod  = "method"
)
