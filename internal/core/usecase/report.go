package usecase

import "github.com/vgrishin/docingest/internal/core/ports"

// maxReportErrors caps per-item diagnostics in stage responses so a large
// failing batch cannot balloon the payload.
const maxReportErrors = 10

type reportBuilder struct {
	processed int
	failed    int
	errors    []string
	truncated bool
}

func (b *reportBuilder) ok() {
	b.processed++
}

func (b *reportBuilder) fail(msg string) {
	b.failed++
	if len(b.errors) < maxReportErrors {
		b.errors = append(b.errors, msg)
		return
	}
	b.truncated = true
}

func (b *reportBuilder) build(message string) ports.StageReport {
	errs := b.errors
	if b.truncated {
		errs = append(errs, "further errors omitted")
	}
	return ports.StageReport{
		Success:   b.failed == 0,
		Processed: b.processed,
		Failed:    b.failed,
		Message:   message,
		Errors:    errs,
	}
}
