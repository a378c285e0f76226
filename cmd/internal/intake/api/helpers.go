package intakeapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/client"
	"github.com/blackswanalpha/CentraQu-sub007/cmd/internal/intake"
)

func toLinkResponse(l intake.Link, now time.Time) linkResponse {
	return linkResponse{
		ID:               l.ID,
		Status:           string(intake.StatusAt(l, now)),
		IsActive:         l.IsActive,
		ExpiresAt:        l.ExpiresAt,
		MaxUses:          l.MaxUses,
		CurrentUses:      l.CurrentUses,
		RemainingUses:    l.RemainingUses(),
		RelatedAuditID:   l.RelatedAuditID,
		RelatedProjectID: l.RelatedProjectID,
		Notes:            l.Notes,
		Metadata:         l.Metadata,
		CreatedBy:        l.CreatedBy,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
		LastAccessedAt:   l.LastAccessedAt,
	}
}

func toSubmissionResponse(s intake.Submission) submissionResponse {
	return submissionResponse{
		ID:              s.ID,
		LinkID:          s.LinkID,
		SubmissionData:  s.Data,
		SubmittedAt:     s.SubmittedAt,
		IPAddress:       s.IPAddress,
		UserAgent:       s.UserAgent,
		Status:          string(s.Status),
		ReviewedBy:      s.ReviewedBy,
		ReviewedAt:      s.ReviewedAt,
		Notes:           s.Notes,
		RejectionReason: s.RejectionReason,
	}
}

func toClientResponse(r *client.Result) *clientResponse {
	if r == nil {
		return nil
	}
	return &clientResponse{
		ID:      r.Client.ID,
		Name:    r.Client.Name,
		Email:   r.Client.Email,
		Created: r.Created,
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func toAuditEventResponse(e intake.AuditEvent) auditEventResponse {
	return auditEventResponse{
		Action:       e.Action,
		Actor:        e.Actor,
		LinkID:       e.LinkID,
		SubmissionID: e.SubmissionID,
		IP:           e.IP,
		Meta:         e.Meta,
		CreatedAt:    e.CreatedAt,
	}
}
