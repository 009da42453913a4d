// Copyright 2017, Square, Inc.

package pipeline

// A PipelineCheck checks the description of one pipeline.
type PipelineCheck interface {
	CheckPipeline(pipeline string, pi *Interface) error
}

// A ProtocolCheck checks the pipelines mapped to one protocol.
type ProtocolCheck interface {
	CheckProtocol(protocol string, pipelines []string) error
}

// A CheckFactory makes the checks a Checker runs. Error checks fail the
// check; warning checks are reported only.
type CheckFactory interface {
	MakePipelineErrorChecks() ([]PipelineCheck, error)
	MakePipelineWarningChecks() ([]PipelineCheck, error)
	MakeProtocolErrorChecks() ([]ProtocolCheck, error)
	MakeProtocolWarningChecks() ([]ProtocolCheck, error)
}

// Checker runs checks on a pipeline interface and protocol mappings.
type Checker struct {
	pipelineErrorChecks   []PipelineCheck
	pipelineWarningChecks []PipelineCheck
	protocolErrorChecks   []ProtocolCheck
	protocolWarningChecks []ProtocolCheck
}

// NewChecker makes a Checker with the checks of every factory.
func NewChecker(checkFactories []CheckFactory) (*Checker, error) {
	checker := &Checker{
		pipelineErrorChecks:   []PipelineCheck{},
		pipelineWarningChecks: []PipelineCheck{},
		protocolErrorChecks:   []ProtocolCheck{},
		protocolWarningChecks: []ProtocolCheck{},
	}

	for _, factory := range checkFactories {
		pec, err := factory.MakePipelineErrorChecks()
		if err != nil {
			return nil, err
		}
		checker.pipelineErrorChecks = append(checker.pipelineErrorChecks, pec...)

		pwc, err := factory.MakePipelineWarningChecks()
		if err != nil {
			return nil, err
		}
		checker.pipelineWarningChecks = append(checker.pipelineWarningChecks, pwc...)

		prec, err := factory.MakeProtocolErrorChecks()
		if err != nil {
			return nil, err
		}
		checker.protocolErrorChecks = append(checker.protocolErrorChecks, prec...)

		prwc, err := factory.MakeProtocolWarningChecks()
		if err != nil {
			return nil, err
		}
		checker.protocolWarningChecks = append(checker.protocolWarningChecks, prwc...)
	}

	return checker, nil
}

// RunChecks runs every check. Results are keyed by pipeline id or protocol.
// pm can be nil to check only the pipeline interface.
func (checker *Checker) RunChecks(pi *Interface, pm *ProtocolMapper) *CheckResults {
	results := NewCheckResults()

	for _, pipeline := range pi.Pipelines() {
		for _, check := range checker.pipelineErrorChecks {
			if err := check.CheckPipeline(pipeline, pi); err != nil {
				results.AddError(pipeline, err)
			}
		}
		for _, check := range checker.pipelineWarningChecks {
			if err := check.CheckPipeline(pipeline, pi); err != nil {
				results.AddWarning(pipeline, err)
			}
		}
	}

	if pm == nil {
		return results
	}
	for _, protocol := range pm.Protocols() {
		pipelines := pm.Build(protocol)
		for _, check := range checker.protocolErrorChecks {
			if err := check.CheckProtocol(protocol, pipelines); err != nil {
				results.AddError(protocol, err)
			}
		}
		for _, check := range checker.protocolWarningChecks {
			if err := check.CheckProtocol(protocol, pipelines); err != nil {
				results.AddWarning(protocol, err)
			}
		}
	}

	return results
}

// --------------------------------------------------------------------------

type CheckResult struct {
	Errors   []error
	Warnings []error
}

type CheckResults struct {
	Results    map[string]*CheckResult
	AnyError   bool
	AnyWarning bool
}

func NewCheckResults() *CheckResults {
	return &CheckResults{
		Results: map[string]*CheckResult{},
	}
}

func (c *CheckResults) AddError(key string, err error) {
	if _, ok := c.Results[key]; !ok {
		c.Results[key] = &CheckResult{}
	}
	c.Results[key].Errors = append(c.Results[key].Errors, err)
	c.AnyError = true
}

func (c *CheckResults) AddWarning(key string, err error) {
	if _, ok := c.Results[key]; !ok {
		c.Results[key] = &CheckResult{}
	}
	c.Results[key].Warnings = append(c.Results[key].Warnings, err)
	c.AnyWarning = true
}

func (c *CheckResults) Get(key string) (*CheckResult, bool) {
	result, ok := c.Results[key]
	return result, ok
}
