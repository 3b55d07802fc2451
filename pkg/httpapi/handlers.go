package httpapi

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/idrissimart/souk/pkg/knowledge"
)

type chatbotMessageRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"session_id"`
}

type quickActionView struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	Icon        string `json:"icon,omitempty"`
}

type chatbotMessageResponse struct {
	Response       string            `json:"response"`
	SessionID      string            `json:"session_id"`
	ConversationID string            `json:"conversation_id"`
	Intent         string            `json:"intent"`
	QuickActions   []quickActionView `json:"quick_actions"`
	Suggestions    []string          `json:"suggestions"`
}

func (s *Server) handleChatbotMessage(w http.ResponseWriter, r *http.Request) {
	var req chatbotMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON with a message field")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "message is required")
		return
	}

	// The chatbot serves anonymous visitors too; identity just enriches the
	// conversation record when a token is present.
	var userID string
	if ident, err := s.identity(r); err == nil {
		userID = ident.ID
	}

	result, err := s.responder.Respond(r.Context(), knowledge.RespondInput{
		Message:   req.Message,
		SessionID: req.SessionID,
		UserID:    userID,
	})
	if errors.Is(err, knowledge.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, "empty_message", "message must not be empty")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("chatbot respond failed")
		writeError(w, http.StatusInternalServerError, "internal", "could not process the message")
		return
	}

	actions := make([]quickActionView, 0, len(result.QuickActions))
	for _, a := range result.QuickActions {
		actions = append(actions, quickActionView{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			Type:        string(a.Kind),
			Value:       a.Value,
			Icon:        a.Icon,
		})
	}
	suggestions := result.QuickReplies
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, chatbotMessageResponse{
		Response:       result.ResponseText,
		SessionID:      result.SessionID,
		ConversationID: result.ConversationID,
		Intent:         string(result.Intent),
		QuickActions:   actions,
		Suggestions:    suggestions,
	})
}

type chatbotFeedbackRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	IsHelpful      *bool  `json:"is_helpful" validate:"required"`
}

type feedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleChatbotFeedback(w http.ResponseWriter, r *http.Request) {
	var req chatbotFeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON with conversation_id and is_helpful")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "conversation_id and is_helpful are required")
		return
	}

	if s.responder.Rate(r.Context(), req.ConversationID, *req.IsHelpful) {
		writeJSON(w, http.StatusOK, feedbackResponse{Success: true, Message: "شكرا لتقييمك"})
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Success: false, Message: "المحادثة غير موجودة"})
}

type otpRequestBody struct {
	Phone string `json:"phone" validate:"required,min=8"`
}

func (s *Server) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	var req otpRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON with a phone field")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_phone", "a valid phone number is required")
		return
	}
	if err := s.otp.Request(r.Context(), req.Phone); err != nil {
		s.logger.Error().Err(err).Msg("otp request failed")
		writeError(w, http.StatusInternalServerError, "internal", "could not send the verification code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type otpVerifyBody struct {
	Phone string `json:"phone" validate:"required,min=8"`
	Code  string `json:"code" validate:"required"`
}

func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON with phone and code fields")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "phone and code are required")
		return
	}
	ok, err := s.otp.Verify(r.Context(), req.Phone, req.Code)
	if err != nil {
		s.logger.Error().Err(err).Msg("otp verify failed")
		writeError(w, http.StatusInternalServerError, "internal", "could not verify the code")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, feedbackResponse{Success: false, Message: "رمز التحقق غير صحيح أو منتهي الصلاحية"})
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Success: true, Message: "تم التحقق بنجاح"})
}
