package http

import (
	"net/http"

	"spendlog/internal/log"
)

// InsightSourceHeader tells clients whether ai_insight was generated or
// is the local fallback text.
const InsightSourceHeader = "X-Insight-Source"

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	query := r.URL.Query()
	window, err := ParseDateRange(query)
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	withInsight, err := ParseInsightFlag(query)
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}

	report, err := s.analytics.Analyze(r.Context(), userID, window, withInsight)
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}

	resp := NewJSONResponse().JSON(newAnalyticsResponse(report))
	if report.Insight != nil {
		resp.Header(InsightSourceHeader, string(report.Insight.Source))
		log.FromContext(r.Context()).DebugContext(r.Context(), "Insight attached",
			log.FieldUserID, userID,
			log.FieldInsightSource, string(report.Insight.Source),
			log.FieldInsightReason, string(report.Insight.Reason),
		)
	}
	resp.Write(w)
}
