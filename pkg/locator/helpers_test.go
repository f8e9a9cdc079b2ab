package locator

import (
	"testing"

	"github.com/songzhibin97/stackinspector/pkg/analyzer"
	"github.com/songzhibin97/stackinspector/pkg/parser"
	"github.com/songzhibin97/stackinspector/pkg/parser/parsertest"
)

var filterAll = analyzer.Filter{}

func modernSnapshot(t *testing.T) *parser.Snapshot {
	t.Helper()
	return parsertest.MustParse(t, parsertest.ModernDump)
}

func tomcatSnapshot(t *testing.T) *parser.Snapshot {
	t.Helper()
	return parsertest.MustParse(t, parsertest.TomcatDump)
}
