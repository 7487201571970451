package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lottery_service/internal/agent"
	"lottery_service/internal/bet"
	"lottery_service/internal/draw"
	"lottery_service/internal/period"
	"lottery_service/internal/wallet"
)

// ClockView is the read side of the period clock.
type ClockView interface {
	Snapshot(now time.Time) period.Snapshot
}

type Server struct {
	log     *zap.Logger
	clock   ClockView
	periods period.PeriodRepository
	results draw.ResultRepository
	bets    *bet.Service
	wallet  *wallet.Service
	agents  *agent.Service
	now     func() time.Time
}

func NewServer(log *zap.Logger, clock ClockView, periods period.PeriodRepository, results draw.ResultRepository,
	bets *bet.Service, w *wallet.Service, agents *agent.Service) *Server {
	return &Server{log: log, clock: clock, periods: periods, results: results, bets: bets, wallet: w, agents: agents, now: time.Now}
}

type PeriodResponse struct {
	period.Period
	Result []int `json:"result,omitempty"`
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/period/current", s.currentPeriod)
	r.GET("/periods", s.recentPeriods)
	r.GET("/periods/:id", s.getPeriod)
	r.GET("/periods/:id/bets", s.periodBets)
	r.POST("/bets", s.placeBet)
	r.GET("/bets/:id", s.getBet)
	r.GET("/bets/:id/ledger", s.betLedger)
	r.GET("/members/:member_id/bets", s.memberBets)
	r.GET("/balance/:member_id", s.balance)
	r.PUT("/agents/:id/rebate", s.updateRebate)
	r.GET("/agents/violations", s.violations)
	return r
}

func (s *Server) currentPeriod(c *gin.Context) {
	c.JSON(http.StatusOK, s.clock.Snapshot(s.now()))
}

func (s *Server) recentPeriods(c *gin.Context) {
	limit, ok := s.limit(c, "20")
	if !ok {
		return
	}
	ps, err := s.periods.Recent(c.Request.Context(), limit)
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": ps})
}

func (s *Server) getPeriod(c *gin.Context) {
	id := c.Param("id")
	if _, _, err := period.ParseID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := s.periods.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, period.ErrPeriodNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.internal(c, err)
		return
	}

	resp := PeriodResponse{Period: *p}
	rec, err := s.results.Get(c.Request.Context(), id)
	switch {
	case err == nil:
		result, err := rec.Result()
		if err != nil {
			s.internal(c, err)
			return
		}
		resp.Result = result[:]
	case !errors.Is(err, draw.ErrResultNotFound):
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) placeBet(c *gin.Context) {
	var req bet.PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.bets.Place(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, bet.ErrInvalidSelection):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, wallet.ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
		case errors.Is(err, bet.ErrBettingClosed), errors.Is(err, period.ErrPeriodNotFound):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, bet.ErrLimitExceeded):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, agent.ErrMemberNotFound), errors.Is(err, wallet.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			s.internal(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getBet(c *gin.Context) {
	b, err := s.bets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, bet.ErrBetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) periodBets(c *gin.Context) {
	id := c.Param("id")
	if _, _, err := period.ParseID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bs, err := s.bets.ListByPeriod(c.Request.Context(), id)
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bets": bs})
}

func (s *Server) memberBets(c *gin.Context) {
	limit, ok := s.limit(c, "50")
	if !ok {
		return
	}
	bs, err := s.bets.ListByMember(c.Request.Context(), c.Param("member_id"), limit)
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bets": bs})
}

// betLedger lists every balance movement caused by one bet: stake, win and rebates.
func (s *Server) betLedger(c *gin.Context) {
	recs, err := s.wallet.Ledger(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": recs, "total": wallet.Sum(recs)})
}

func (s *Server) balance(c *gin.Context) {
	actor := c.DefaultQuery("actor", wallet.ActorMember)
	resp, err := s.wallet.GetBalance(c.Request.Context(), actor, c.Param("member_id"))
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, wallet.ErrUnknownActor):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			s.internal(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) updateRebate(c *gin.Context) {
	var req agent.UpdateRebateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	changes, err := s.agents.UpdateRebatePercentage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrAgentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, agent.ErrUnknownMode), errors.Is(err, agent.ErrRebateNegative):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, agent.ErrRebateTooHigh):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			s.internal(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

func (s *Server) violations(c *gin.Context) {
	v, err := s.agents.Verify(c.Request.Context())
	if err != nil {
		s.internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"violations": v})
}

func (s *Server) limit(c *gin.Context, def string) (int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", def))
	if err != nil || limit < 1 || limit > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
		return 0, false
	}
	return limit, true
}

func (s *Server) internal(c *gin.Context, err error) {
	s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
