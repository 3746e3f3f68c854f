package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveMaterializeCountsRowsOnlyOnSuccess(t *testing.T) {
	rowsBefore := testutil.ToFloat64(materializedRowsTotal)
	okBefore := testutil.ToFloat64(materializeTotal.WithLabelValues(StatusOK, "parquet"))
	errBefore := testutil.ToFloat64(materializeTotal.WithLabelValues(StatusError, "parquet"))

	ObserveMaterialize("parquet", 2, 10, time.Second, nil)
	ObserveMaterialize("parquet", 2, 99, time.Second, errors.New("boom"))
	ObserveMaterialize("parquet", 1, -1, time.Second, nil)

	if got := testutil.ToFloat64(materializedRowsTotal) - rowsBefore; got != 10 {
		t.Fatalf("rows delta = %v, want 10", got)
	}
	if got := testutil.ToFloat64(materializeTotal.WithLabelValues(StatusOK, "parquet")) - okBefore; got != 2 {
		t.Fatalf("ok delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(materializeTotal.WithLabelValues(StatusError, "parquet")) - errBefore; got != 1 {
		t.Fatalf("error delta = %v, want 1", got)
	}
}

func TestObservePreviewAndSchemaProbe(t *testing.T) {
	previewBefore := testutil.ToFloat64(previewTotal.WithLabelValues(StatusError))
	probeBefore := testutil.ToFloat64(schemaProbeTotal.WithLabelValues(StatusOK))

	ObservePreview(3, errors.New("bad plan"))
	ObserveSchemaProbe(nil)

	if got := testutil.ToFloat64(previewTotal.WithLabelValues(StatusError)) - previewBefore; got != 1 {
		t.Fatalf("preview error delta = %v", got)
	}
	if got := testutil.ToFloat64(schemaProbeTotal.WithLabelValues(StatusOK)) - probeBefore; got != 1 {
		t.Fatalf("schema probe delta = %v", got)
	}
}
