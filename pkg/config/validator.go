package config

import "fmt"

// Validate checks that a loaded Config is internally consistent enough to
// start the agent. It does not check LRMS reachability or launcher
// availability — those failures (MisconfiguredEnvironment,
// LauncherUnavailable) surface later, at the components that own them
// (§4.1, §4.3), not here.
func Validate(c *Config) error {
	if c.PilotID == "" {
		return NewValidationError("pilot_id", ErrMissingRequiredField)
	}
	if c.SessionID == "" {
		return NewValidationError("session_id", ErrMissingRequiredField)
	}
	if c.RuntimeMinutes <= 0 {
		return NewValidationError("runtime", fmt.Errorf("%w: must be > 0 minutes", ErrInvalidValue))
	}
	if c.Cores <= 0 {
		return NewValidationError("cores", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if c.LRMS == "" {
		return NewValidationError("lrms", ErrMissingRequiredField)
	}
	if c.Scheduler == "" {
		return NewValidationError("scheduler", ErrMissingRequiredField)
	}
	if c.TaskLaunchMethod == "" {
		return NewValidationError("task_launch_method", ErrMissingRequiredField)
	}
	if c.PilotSandbox == "" {
		return NewValidationError("pilot_sandbox", ErrMissingRequiredField)
	}
	for name, sub := range c.Agents {
		switch sub.Target {
		case AgentTargetLocal, AgentTargetNode:
		default:
			return NewValidationError(fmt.Sprintf("agents.%s.target", name),
				fmt.Errorf("%w: %q", ErrInvalidValue, sub.Target))
		}
	}
	return nil
}
