package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/sqlassist/pkg/archive"
	"github.com/ruslano69/sqlassist/pkg/audit"
	"github.com/ruslano69/sqlassist/pkg/failure"
	"github.com/ruslano69/sqlassist/pkg/processors"
	"github.com/ruslano69/sqlassist/pkg/resultlog"
	"github.com/ruslano69/sqlassist/pkg/rowset"
	"github.com/ruslano69/sqlassist/pkg/xlsx"
)

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Run is one execution of a report.
type Run struct {
	ID         int64          `json:"id"`
	ReportID   int64          `json:"report_id"`
	Status     string         `json:"status"`
	RowSet     *rowset.RowSet `json:"rowset,omitempty"`
	RowCount   int            `json:"row_count"`
	Checksum   string         `json:"checksum,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
	RunTime    time.Time      `json:"run_time"`
	ArchiveURL string         `json:"archive_url,omitempty"`
}

// deadLetter - что попадает в DLQ, когда попытки исчерпаны
type deadLetter struct {
	ReportID int64  `json:"report_id"`
	Name     string `json:"report_name"`
	Source   string `json:"source"`
	Query    string `json:"query"`
}

// deliveryMessage - тело сообщения брокеру
type deliveryMessage struct {
	ReportID   int64     `json:"report_id"`
	ReportName string    `json:"report_name"`
	Source     string    `json:"source"`
	RunTime    time.Time `json:"run_time"`
	RowCount   int       `json:"row_count"`
	Checksum   string    `json:"checksum"`
	Columns    []string  `json:"columns"`
	Rows       [][]any   `json:"rows"`
}

// RunReport executes a report now, stores the run and moves its schedule.
// A failed query is stored too and returned as the error; state publishing,
// broker delivery and archiving problems are only logged.
func (s *Scheduler) RunReport(ctx context.Context, id int64) (*Run, error) {
	report, err := s.store.get(ctx, id)
	if err != nil {
		return nil, err
	}

	started := s.now()
	var rs *rowset.RowSet
	execErr := s.retryer.DoWithData(ctx, func(ctx context.Context) error {
		var err error
		rs, err = s.exec.Execute(ctx, report.Source, report.Query)
		return err
	}, deadLetter{ReportID: report.ID, Name: report.Name, Source: report.Source, Query: report.Query})
	finished := s.now()

	run := &Run{
		ReportID: report.ID,
		Status:   StatusSuccess,
		RunTime:  finished,
		Duration: finished.Sub(started),
	}
	stored := storedRun{ReportID: report.ID, RunTime: finished, DurationMs: run.Duration.Milliseconds()}

	if execErr != nil {
		run.Status, run.Error = StatusFailed, execErr.Error()
	} else {
		run.RowSet, run.RowCount = rs, rs.Len()
		enc, err := processors.EncodeRowSet(ctx, rs, processors.DefaultLevel)
		if err != nil {
			return nil, fmt.Errorf("encode report %d result: %w", id, err)
		}
		run.Checksum = enc.Checksum
		stored.Payload, stored.Checksum = enc.Payload, enc.Checksum
		log.Debug().Int64("report", id).Int("raw", enc.Stats.OriginalSize).
			Int("stored", enc.Stats.CompressedSize).Msg("report result encoded")
	}
	stored.Status, stored.RowCount, stored.Error = run.Status, run.RowCount, run.Error

	sched, err := ParseSchedule(report.Frequency, report.At)
	if err != nil {
		return nil, err
	}
	if run.ID, err = s.store.saveRun(ctx, stored, sched.Next(finished)); err != nil {
		return nil, err
	}

	reportRunsTotal.WithLabelValues(run.Status).Inc()
	s.publishState(ctx, report, run, started, execErr)

	if execErr == nil {
		s.deliver(ctx, report, run)
		run.ArchiveURL = s.archiveRun(ctx, report, run)
	}

	s.auditRun(ctx, report, run, execErr)

	event := log.Info()
	if execErr != nil {
		event = log.Warn().Err(execErr)
	}
	event.Int64("report", id).Str("source", report.Source).Str("status", run.Status).
		Int("rows", run.RowCount).Dur("elapsed", run.Duration).Msg("report run finished")

	if execErr != nil {
		return run, fmt.Errorf("report %d: %w", id, execErr)
	}
	return run, nil
}

func (s *Scheduler) publishState(ctx context.Context, report Report, run *Run, started time.Time, execErr error) {
	if s.state == nil {
		return
	}
	err := s.state.Publish(ctx, resultlog.RunResult{
		ReportID:   report.ID,
		ReportName: report.Name,
		Source:     report.Source,
		StartedAt:  started,
		FinishedAt: run.RunTime,
		RowCount:   run.RowCount,
		Checksum:   run.Checksum,
	}, execErr)
	if err != nil {
		log.Warn().Err(err).Int64("report", report.ID).Msg("run state not published")
	}
}

func (s *Scheduler) deliver(ctx context.Context, report Report, run *Run) {
	if s.publisher == nil {
		return
	}
	masked := s.masker.Apply(run.RowSet)
	body, err := json.Marshal(deliveryMessage{
		ReportID:   report.ID,
		ReportName: report.Name,
		Source:     report.Source,
		RunTime:    run.RunTime,
		RowCount:   run.RowCount,
		Checksum:   run.Checksum,
		Columns:    masked.Columns,
		Rows:       masked.Rows,
	})
	if err != nil {
		log.Warn().Err(err).Int64("report", report.ID).Msg("report message not encoded")
		return
	}
	key := fmt.Sprintf("report-%d", report.ID)
	if err := s.publisher.Publish(ctx, key, body); err != nil {
		log.Warn().Err(err).Int64("report", report.ID).Str("broker", s.publisher.Type()).Msg("report not delivered")
	}
}

// archiveRun exports the run to xlsx with a chart chosen from the report name.
func (s *Scheduler) archiveRun(ctx context.Context, report Report, run *Run) string {
	if s.archive == nil {
		return ""
	}
	spec := s.charts.Select(report.Name, run.RowSet)
	data, err := xlsx.Bytes(run.RowSet, spec, "")
	if err != nil {
		log.Warn().Err(err).Int64("report", report.ID).Msg("report workbook not built")
		return ""
	}
	url, err := s.archive.Put(ctx, archive.ReportKey(report.ID, report.Name, run.RunTime), data, archive.XLSXContentType)
	if err != nil {
		log.Warn().Err(err).Int64("report", report.ID).Msg("report not archived")
		return ""
	}
	return url
}

func (s *Scheduler) auditRun(ctx context.Context, report Report, run *Run, execErr error) {
	entry := audit.NewEntry(audit.OpReportRun, audit.StatusSuccess).
		WithSource(report.Source).
		WithResource(report.Name).
		WithRecords(run.RowCount).
		WithDuration(run.Duration).
		WithMetadata("report_id", report.ID)
	if execErr != nil {
		kind, _ := failure.KindOf(execErr)
		entry.WithError(string(kind), execErr)
	}
	if run.ArchiveURL != "" {
		entry.WithMetadata("archive", run.ArchiveURL)
	}
	s.logAudit(ctx, entry)
}

// Results returns up to limit runs of a report, newest first, with their
// stored result sets decoded and checksums verified.
func (s *Scheduler) Results(ctx context.Context, reportID int64, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	stored, err := s.store.runs(ctx, reportID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Run, 0, len(stored))
	for _, st := range stored {
		run := Run{
			ID:       st.ID,
			ReportID: st.ReportID,
			Status:   st.Status,
			RowCount: st.RowCount,
			Checksum: st.Checksum,
			Error:    st.Error,
			Duration: time.Duration(st.DurationMs) * time.Millisecond,
			RunTime:  st.RunTime,
		}
		if st.Payload != "" {
			rs, err := processors.DecodeRowSet(ctx, st.Payload, st.Checksum)
			if err != nil {
				return nil, fmt.Errorf("result %d: %w", st.ID, err)
			}
			run.RowSet = rs
		}
		out = append(out, run)
	}
	return out, nil
}
