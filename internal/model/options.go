package model

import "encoding/json"

// Options controls per-task cleanup and routing behaviour (spec.md §3).
type Options struct {
	OnFailForceInterruption bool   `json:"on_fail_force_interruption"`
	OnFailRemoveLocalDir    bool   `json:"on_fail_remove_local_dir"`
	OnFinishRemoveLocalDir  bool   `json:"on_finish_remove_local_dir"`
	QueueName               string `json:"queue_name,omitempty"`
	TimeLimitSeconds        int    `json:"time_limit_seconds,omitempty"`
}

// DefaultOptions matches the defaults enumerated in spec.md §3.
func DefaultOptions() Options {
	return Options{
		OnFailForceInterruption: true,
		OnFailRemoveLocalDir:    true,
		OnFinishRemoveLocalDir:  false,
	}
}

// UnmarshalJSON overlays the fields present in data onto DefaultOptions, so
// a task or workflow submitted with an omitted or partial "options" object
// still gets the spec §3 defaults instead of Go's zero values.
func (o *Options) UnmarshalJSON(data []byte) error {
	type alias Options
	v := alias(DefaultOptions())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Options(v)
	return nil
}
