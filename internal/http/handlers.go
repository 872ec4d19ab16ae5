package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"orti/internal/engine"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady opens the current year's session, which exercises the store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReadyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	if _, err := s.currentSession(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}
	checks["open_sessions"] = s.registry.Years()
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	NewJSONResponse().Status(httpStatus).Data(map[string]any{
		"status":    status,
		"company":   s.registry.Company().Code,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	rateMetrics := s.rateLimiter.GetMetrics()
	secMetrics := s.detector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateMetrics.TotalHits)
	metric("rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Requests matching a probe pattern", secMetrics.SuspiciousRequests)
	metric("open_sessions", "gauge", "Company years held in memory", s.registry.Cache().Size())
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(newCategoryViews(sess.Categories())).Write(w)
}

// handleCell returns the displayed value of a category or subcategory month.
func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	month, err := QueryMonth(r, "month")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := QueryView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := sess.Cell(id, month, view)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(cellView{ID: id, Year: sess.Year(), Month: month, View: view, Value: value}).Write(w)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := QueryView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	totals, err := sess.YearTotals(view)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(totals).Write(w)
}

func (s *Server) handleMonthStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	month, err := PathMonth(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := sess.MonthStatus(month)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(status).Write(w)
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(statusesView{Year: sess.Year(), Months: sess.MonthStatuses()}).Write(w)
}

// handleValidation reconciles one category month. A mismatch is a normal
// 200 response: the result is advisory.
func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := PathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	month, err := QueryMonth(r, "month")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := QueryView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := sess.Validation(id, month, view)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(res).Write(w)
}

func (s *Server) handleYearValidation(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := QueryView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	mismatches, err := sess.ValidateYear(view)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if mismatches == nil {
		mismatches = []engine.ReconciliationResult{}
	}
	NewJSONResponse().Data(yearValidationView{
		Year:       sess.Year(),
		View:       view,
		Valid:      len(mismatches) == 0,
		Mismatches: mismatches,
	}).Write(w)
}

// handleBalance rolls ?balance= forward from month ?start=.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	anchor, err := QueryMonth(r, "start")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	starting, err := QueryAmount(r, "balance")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := QueryView(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	series, err := sess.BalanceSeries(anchor, starting, view)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(balanceView{
		Year:            sess.Year(),
		View:            view,
		AnchorMonth:     anchor,
		StartingBalance: starting,
		Balances:        series[:],
	}).Write(w)
}

// handleVariance returns the year variance, or a category's monthly variance
// when ?category= is given.
func (s *Server) handleVariance(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, ok, err := QueryUUID(r, "category")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		NewJSONResponse().Data(sess.Variance()).Write(w)
		return
	}
	months, err := sess.CategoryVariance(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(categoryVarianceView{CategoryID: id, Months: months[:]}).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Data(sess.MonthlySummary()).Write(w)
}
