package controllers

import (
	"net/http"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

type KnowledgeController struct {
	Knowledge *services.KnowledgeService
}

func NewKnowledgeController(knowledge *services.KnowledgeService) *KnowledgeController {
	return &KnowledgeController{Knowledge: knowledge}
}

// UpsertChunk -> store a chunk; the text is embedded when no vector is sent
func (kc *KnowledgeController) UpsertChunk(c *gin.Context) {
	var body struct {
		Content   string                 `json:"content" binding:"required"`
		Metadata  map[string]interface{} `json:"metadata"`
		Embedding []float32              `json:"embedding"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, err.Error(), string(services.CodeInvalidInput), nil)
		return
	}

	ctx := c.Request.Context()
	var (
		chunk *models.KnowledgeChunk
		err   error
	)
	if len(body.Embedding) > 0 {
		chunk, err = kc.Knowledge.Upsert(ctx, body.Content, body.Metadata, body.Embedding)
	} else {
		chunk, err = kc.Knowledge.UpsertText(ctx, body.Content, body.Metadata)
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Chunk stored", chunk)
}

// Stats -> size of the index and whether search is approximate
func (kc *KnowledgeController) Stats(c *gin.Context) {
	count, err := kc.Knowledge.Count(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Knowledge index", gin.H{
		"chunks":      count,
		"dimension":   kc.Knowledge.Dimension(),
		"approximate": kc.Knowledge.Approximate(),
	})
}
