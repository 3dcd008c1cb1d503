package enums

// TriggerSource identifies what started a processing run.
type TriggerSource string

const (
	TriggerSourceWebhook  TriggerSource = "webhook"
	TriggerSourceOperator TriggerSource = "operator"
)

var validTriggerSources = []TriggerSource{
	TriggerSourceWebhook,
	TriggerSourceOperator,
}

// IsValid reports whether the value is a known trigger source.
func (s TriggerSource) IsValid() bool {
	for _, candidate := range validTriggerSources {
		if candidate == s {
			return true
		}
	}
	return false
}
