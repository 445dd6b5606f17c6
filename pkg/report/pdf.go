package report

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// renderPDF converts the Markdown report with pandoc.
func (g *Generator) renderPDF(ctx context.Context, mdPath, pdfPath string) error {
	bin, err := exec.LookPath(g.pandoc)
	if err != nil {
		return fmt.Errorf("pandoc not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, mdPath, "-o", pdfPath, "--pdf-engine="+g.pdfEngine)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pandoc: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
