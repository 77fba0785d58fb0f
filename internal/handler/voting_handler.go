package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-flow-api/internal/service"
	appErrors "github.com/noah-isme/course-flow-api/pkg/errors"
	"github.com/noah-isme/course-flow-api/pkg/response"
)

// VotingHandler exposes topic voting endpoints.
type VotingHandler struct {
	voting *service.VotingService
}

// NewVotingHandler constructs VotingHandler.
func NewVotingHandler(voting *service.VotingService) *VotingHandler {
	return &VotingHandler{voting: voting}
}

// SubmitVotes godoc
// @Summary Submit topic votes
// @Description Replaces the student's whole vote set for the course
// @Tags Voting
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.SubmitVotesRequest true "Vote payload"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /courses/{id}/votes [put]
func (h *VotingHandler) SubmitVotes(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SubmitVotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.voting.SubmitVotes(c.Request.Context(), claims.UserID, c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MyVotes godoc
// @Summary Current student's votes
// @Tags Voting
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/votes [get]
func (h *VotingHandler) MyVotes(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	votes, err := h.voting.MyVotes(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, votes, nil)
}

// Tally godoc
// @Summary Vote tally per module
// @Tags Voting
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/votes/tally [get]
func (h *VotingHandler) Tally(c *gin.Context) {
	tallies, err := h.voting.Tally(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tallies, nil)
}

// Finalize godoc
// @Summary Finalize topic voting
// @Description Marks the winning modules selected and moves the course to SCHEDULED
// @Tags Voting
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/votes/finalize [post]
func (h *VotingHandler) Finalize(c *gin.Context) {
	result, err := h.voting.FinalizeVoting(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
