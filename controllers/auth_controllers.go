package controllers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// ClientCredential is one machine client allowed to request tokens.
type ClientCredential struct {
	ClientID   string
	SecretHash string // bcrypt
	Role       string
}

type AuthController struct {
	Issuer  *utils.TokenIssuer
	Clients []ClientCredential
}

func NewAuthController(issuer *utils.TokenIssuer, clients ...ClientCredential) *AuthController {
	configured := make([]ClientCredential, 0, len(clients))
	for _, cl := range clients {
		if cl.ClientID != "" && cl.SecretHash != "" {
			configured = append(configured, cl)
		}
	}
	return &AuthController{Issuer: issuer, Clients: configured}
}

// IssueToken -> client_credentials exchange for the agent, operators and couriers
func (ac *AuthController) IssueToken(c *gin.Context) {
	var input struct {
		ClientID     string `json:"client_id" binding:"required"`
		ClientSecret string `json:"client_secret" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var matched *ClientCredential
	for i := range ac.Clients {
		if subtle.ConstantTimeCompare([]byte(ac.Clients[i].ClientID), []byte(input.ClientID)) == 1 {
			matched = &ac.Clients[i]
			break
		}
	}
	if matched == nil {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(matched.SecretHash), []byte(input.ClientSecret)); err != nil {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	token, err := ac.Issuer.GenerateToken(matched.ClientID, matched.Role)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Token issued", gin.H{
		"token": token,
		"role":  matched.Role,
	})
}
