package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/lumenlabs/scopewatch/internal/fault"
	"github.com/lumenlabs/scopewatch/internal/intake"
	"github.com/lumenlabs/scopewatch/internal/model"
	"github.com/lumenlabs/scopewatch/internal/scope"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps the fault taxonomy to a status and a short
// machine-readable error string. Details stay in the logs.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := fault.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	respondJSON(w, status, map[string]any{"success": false, "error": fault.Message(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
		return false
	}
	return true
}

// POST /ingest {project_id?, message_text, source}
func (e *appEnv) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID   *string `json:"project_id"`
		MessageText string  `json:"message_text"`
		Source      string  `json:"source"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	draft, err := intake.Direct(req.ProjectID, req.MessageText, req.Source)
	if err != nil {
		respondError(w, r, err)
		return
	}

	msg, err := e.Pipeline.Ingest(r.Context(), draft)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message_id": msg.ID})
}

// POST /gmail-webhook {from|sender, body|snippet|text}. Best-effort:
// normalization and storage failures are logged, the forwarder still gets 200.
func (e *appEnv) handleGmailWebhook(w http.ResponseWriter, r *http.Request) {
	var payload intake.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		zap.L().Warn("webhook body undecodable", zap.Error(err))
		respondJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	draft, err := intake.FromWebhook(payload)
	if err != nil {
		zap.L().Warn("webhook payload skipped", zap.Error(err))
		respondJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if _, err := e.Pipeline.Ingest(r.Context(), draft); err != nil {
		zap.L().Error("webhook ingest failed", zap.Error(err))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// POST /analyze-scope {message_text, project_id?, message_id?}
func (e *appEnv) handleAnalyzeScope(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageText string  `json:"message_text"`
		ProjectID   *string `json:"project_id"`
		MessageID   string  `json:"message_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, analysis, err := e.Pipeline.AnalyzeText(r.Context(), req.MessageText, req.ProjectID, req.MessageID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := map[string]any{
		"success": true,
		"result":  analysisResultJSON(result),
	}
	if analysis != nil {
		resp["analysis_id"] = analysis.ID
	}
	respondJSON(w, http.StatusOK, resp)
}

func analysisResultJSON(result *scope.Result) map[string]any {
	return map[string]any{
		"is_out_of_scope":          result.IsOutOfScope,
		"summary":                  result.Summary,
		"estimated_impact_hours":   result.EstimatedImpactHours,
		"suggested_price_increase": string(result.SuggestedPriceIncrease),
		"low_confidence":           result.LowConfidence,
	}
}

// POST /assign-project {message_id, project_id}
func (e *appEnv) handleAssignProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"message_id"`
		ProjectID string `json:"project_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	analysis, err := e.Pipeline.Reassign(r.Context(), req.MessageID, req.ProjectID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "analysis_id": analysis.ID})
}

// POST /mark-reviewed {message_id}
func (e *appEnv) handleMarkReviewed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"message_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := e.Pipeline.MarkReviewed(r.Context(), req.MessageID); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// loadMessageAndProject resolves the pair every artifact route needs.
func (e *appEnv) loadMessageAndProject(r *http.Request, messageID, projectID string) (*model.Message, *model.Project, error) {
	if messageID == "" {
		return nil, nil, fault.NewValidation("message_id", "required")
	}
	if projectID == "" {
		return nil, nil, fault.NewValidation("project_id", "required")
	}

	msg, err := e.Pipeline.Store().GetMessage(r.Context(), messageID)
	if err != nil {
		return nil, nil, fault.NewStorage("get message", err)
	}
	if msg == nil {
		return nil, nil, fault.NewNotFound("message", messageID)
	}

	project, err := e.Pipeline.Store().GetProject(r.Context(), projectID)
	if err != nil {
		return nil, nil, fault.NewStorage("get project", err)
	}
	if project == nil {
		return nil, nil, fault.NewNotFound("project", projectID)
	}
	return msg, project, nil
}

// POST /generate-proposal {message_id, project_id}
func (e *appEnv) handleGenerateProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"message_id"`
		ProjectID string `json:"project_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	msg, project, err := e.loadMessageAndProject(r, req.MessageID, req.ProjectID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	proposal, err := e.Generator.DraftProposal(r.Context(), *msg, *project)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "proposal_text": proposal.Text})
}

// POST /generate-invoice {message_id, project_id}
func (e *appEnv) handleGenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID string `json:"message_id"`
		ProjectID string `json:"project_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	msg, project, err := e.loadMessageAndProject(r, req.MessageID, req.ProjectID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	draft, err := e.Generator.DraftInvoice(r.Context(), *msg, *project)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"invoice_url": draft.ExternalURL,
		"invoice_id":  draft.ExternalID,
		"amount":      draft.Amount,
	})
}

// POST /send-reply {to, subject, body}
func (e *appEnv) handleSendReply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.To == "" {
		respondError(w, r, fault.NewValidation("to", "required"))
		return
	}
	if req.Body == "" {
		respondError(w, r, fault.NewValidation("body", "required"))
		return
	}

	tok, err := e.Pipeline.Store().GetGmailToken(r.Context(), cfg.Gmail.Account)
	if err != nil {
		respondError(w, r, fault.NewStorage("get gmail token", err))
		return
	}
	if tok == nil {
		respondError(w, r, fault.NewValidation("gmail", "not connected"))
		return
	}

	if err := e.Mail.Send(r.Context(), tok.RefreshToken, req.To, req.Subject, req.Body); err != nil {
		respondError(w, r, fault.NewUpstream("mail service", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GET /gmail/auth-url
func (e *appEnv) handleGmailAuthURL(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"url": e.Mail.AuthURL("")})
}

// GET /oauth-gmail?code=
func (e *appEnv) handleOAuthGmail(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		respondError(w, r, fault.NewValidation("code", "required"))
		return
	}

	tok, err := e.Mail.Exchange(r.Context(), code)
	if err != nil {
		respondError(w, r, fault.NewUpstream("mail service", err))
		return
	}
	if tok.RefreshToken == "" {
		respondError(w, r, fault.NewValidation("code", "no refresh token granted; revoke access and re-consent"))
		return
	}

	if err := e.Pipeline.Store().UpsertGmailToken(r.Context(), model.GmailToken{
		Account:      cfg.Gmail.Account,
		RefreshToken: tok.RefreshToken,
	}); err != nil {
		respondError(w, r, fault.NewStorage("upsert gmail token", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// POST /trigger-gmail-poll
func (e *appEnv) handleTriggerPoll(w http.ResponseWriter, r *http.Request) {
	if err := e.Poller.RunOnce(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GET /messages
func (e *appEnv) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := e.Pipeline.Store().ListMessages(r.Context(), 100)
	if err != nil {
		respondError(w, r, fault.NewStorage("list messages", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
}

// GET /projects
func (e *appEnv) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := e.Pipeline.Store().ListProjects(r.Context())
	if err != nil {
		respondError(w, r, fault.NewStorage("list projects", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "projects": projects})
}

// POST /projects {name, scope_text}
func (e *appEnv) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		ScopeText string `json:"scope_text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, r, fault.NewValidation("name", "required"))
		return
	}

	project, err := e.Pipeline.Store().CreateProject(r.Context(), req.Name, req.ScopeText)
	if err != nil {
		respondError(w, r, fault.NewStorage("create project", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "project": project})
}
