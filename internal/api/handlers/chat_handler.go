package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/core/retrieval"
	"github.com/markdave123-py/docsift/internal/logging"
)

const (
	systemPrompt = "You are an intelligent assistant answering based only on the given document content. If unsure, say 'I cannot find this in the document.'"

	// maxContextChars bounds the context passed to the model.
	maxContextChars = 24000
)

// ChatHandler answers questions from retrieved document context. A nil llm
// makes Ask respond 503.
type ChatHandler struct {
	builder *retrieval.ContextBuilder
	llm     core.LLMProvider
}

func NewChatHandler(builder *retrieval.ContextBuilder, llm core.LLMProvider) *ChatHandler {
	return &ChatHandler{builder: builder, llm: llm}
}

type AskRequest struct {
	Query           string   `json:"query"`
	DocumentIDs     []string `json:"document_ids"`
	InvestigationID string   `json:"investigation_id"`
	MaxChunks       int      `json:"max_chunks"`
	Threshold       *float64 `json:"threshold"`
}

type AskResponse struct {
	Answer        string                `json:"answer"`
	Sources       []retrieval.SourceRef `json:"sources"`
	ChunkCount    int                   `json:"chunk_count"`
	TokenEstimate int                   `json:"token_estimate"`
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.MaxChunks < 0 || req.MaxChunks > 100 {
		writeError(w, http.StatusBadRequest, "max_chunks must be between 1 and 100")
		return
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 1) {
		writeError(w, http.StatusBadRequest, "threshold must be between 0 and 1")
		return
	}
	if h.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "no language model configured")
		return
	}

	cc, err := h.builder.BuildChatContext(ctx, retrieval.ChatRequest{
		Query:           req.Query,
		DocumentIDs:     req.DocumentIDs,
		InvestigationID: req.InvestigationID,
		MaxItems:        req.MaxChunks,
		Threshold:       req.Threshold,
	})
	if err != nil {
		writeServiceError(w, r, notFoundMsg, err)
		return
	}

	contextText := cc.Context
	if runes := []rune(contextText); len(runes) > maxContextChars {
		contextText = string(runes[:maxContextChars])
	}
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, req.Query)

	answer, err := h.llm.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		logging.FromContext(ctx).Error("llm generate failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("LLM failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{
		Answer:        answer,
		Sources:       cc.Sources,
		ChunkCount:    cc.ChunkCount,
		TokenEstimate: cc.TokenEstimate,
	})
}
