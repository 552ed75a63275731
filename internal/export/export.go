// Package export posts the finalized session tallies to an external form
// endpoint. Submission is fire-and-forget: failures are logged and never
// surfaced as experiment errors.
package export

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coglabtools/pmback/internal/scoring"
	"github.com/coglabtools/pmback/internal/trials"
)

// Exporter posts result rows as form-encoded fields.
type Exporter struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

// New creates an exporter. An empty endpoint disables submission.
func New(endpoint string, timeout time.Duration, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Exporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// Enabled reports whether an endpoint is configured.
func (e *Exporter) Enabled() bool {
	return e.endpoint != ""
}

// Submit posts per-category and total tallies. Best-effort: any failure is
// logged at warn and swallowed.
func (e *Exporter) Submit(ctx context.Context, sum scoring.Summary) {
	if !e.Enabled() {
		return
	}

	form := Encode(sum)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		e.log.Warn("result export failed to build request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Warn("result export failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		e.log.Warn("result export rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("endpoint", e.endpoint))
		return
	}
	e.log.Info("results exported", zap.String("session", sum.SessionID))
}

// Encode flattens a summary into form fields: the session totals plus one
// row of tallies per category.
func Encode(sum scoring.Summary) url.Values {
	v := url.Values{}
	v.Set("sessionId", sum.SessionID)
	v.Set("nBackCorrect", strconv.Itoa(sum.NBackCorrect))
	v.Set("nBackMissed", strconv.Itoa(sum.NBackMissed))
	v.Set("nBackFalseAlarms", strconv.Itoa(sum.NBackFalseAlarms))
	v.Set("pmCueCorrect", strconv.Itoa(sum.PMCueCorrect))
	v.Set("pmCueMissed", strconv.Itoa(sum.PMCueMissed))
	v.Set("pmCueFalseAlarms", strconv.Itoa(sum.PMCueFalseAlarms))
	v.Set("totalImages", strconv.Itoa(sum.TotalImages))
	v.Set("totalPMCues", strconv.Itoa(sum.TotalPMCues))
	v.Set("totalNBackMatches", strconv.Itoa(sum.TotalNBackMatches))
	v.Set("nBackAccuracy", sum.NBackAccuracy)
	v.Set("pmCueAccuracy", sum.PMCueAccuracy)

	type tally struct {
		nbCorrect, nbMissed, nbFA int
		pmCorrect, pmMissed, pmFA int
	}
	perCat := make(map[trials.Category]*tally)
	var order []trials.Category
	for _, b := range sum.SessionResults {
		tl, ok := perCat[b.Category]
		if !ok {
			tl = &tally{}
			perCat[b.Category] = tl
			order = append(order, b.Category)
		}
		tl.nbCorrect += b.NBackCorrect
		tl.nbMissed += b.NBackMissed
		tl.nbFA += b.NBackFalseAlarms
		tl.pmCorrect += b.PMCueCorrect
		tl.pmMissed += b.PMCueMissed
		tl.pmFA += b.PMCueFalseAlarms
	}
	for _, cat := range order {
		tl := perCat[cat]
		prefix := string(cat) + "_"
		v.Set(prefix+"nBackCorrect", strconv.Itoa(tl.nbCorrect))
		v.Set(prefix+"nBackMissed", strconv.Itoa(tl.nbMissed))
		v.Set(prefix+"nBackFalseAlarms", strconv.Itoa(tl.nbFA))
		v.Set(prefix+"pmCueCorrect", strconv.Itoa(tl.pmCorrect))
		v.Set(prefix+"pmCueMissed", strconv.Itoa(tl.pmMissed))
		v.Set(prefix+"pmCueFalseAlarms", strconv.Itoa(tl.pmFA))
	}
	return v
}
