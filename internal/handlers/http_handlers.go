package handlers

import (
	"encoding/csv"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vrflottery/internal/ledger"
	"vrflottery/internal/models"
	"vrflottery/internal/repositories"
	"vrflottery/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

// Accounts is the wallet view exposed over HTTP.
type Accounts interface {
	Balance(addr models.Address) *big.Int
	Mint(addr models.Address, amount *big.Int) error
}

// EventSource feeds the notification stream.
type EventSource interface {
	Subscribe(buffer int) (<-chan models.Event, func())
}

// Options carries the optional collaborators of HTTPHandler. A nil field
// disables the routes that need it.
type Options struct {
	Accounts      Accounts
	Rounds        repositories.RoundRepository
	Events        EventSource
	FaucetEnabled bool
	// JWTSecret enables POST /api/v1/vrf/fulfill.
	JWTSecret string
}

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service *services.LotteryService
	opts    Options
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.LotteryService, opts Options) *HTTPHandler {
	return &HTTPHandler{service: service, opts: opts}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	api.GET("/lottery", h.GetLottery)
	api.GET("/lottery/players", h.ListPlayers)
	api.GET("/lottery/players/:index", h.GetPlayer)
	api.POST("/lottery/enter", h.Enter)
	api.POST("/lottery/enter-csv", h.UploadEntriesCSV)
	api.GET("/upkeep", h.CheckUpkeep)
	api.POST("/upkeep", h.PerformUpkeep)

	if h.opts.JWTSecret != "" {
		vrf := api.Group("/vrf")
		vrf.Use(OracleAuthMiddleware([]byte(h.opts.JWTSecret)))
		vrf.POST("/fulfill", h.FulfillRandomWords)
	}

	if h.opts.Rounds != nil {
		api.GET("/rounds", h.ListRounds)
		api.GET("/rounds/export.csv", h.ExportRoundsCSV)
		api.GET("/rounds/:number", h.GetRound)
	}

	if h.opts.Accounts != nil {
		api.GET("/accounts/:address", h.GetAccount)
		if h.opts.FaucetEnabled {
			api.POST("/accounts/:address/fund", h.FundAccount)
		}
	}

	if h.opts.Events != nil {
		api.GET("/events", h.StreamEvents)
	}
}

// Health reports liveness.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": h.service.State().String()})
}

// GetLottery returns a consistent snapshot of the lottery.
func (h *HTTPHandler) GetLottery(c *gin.Context) {
	snap := h.service.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"lottery":              snap,
		"address":              h.service.Address(),
		"entranceFeeEther":     models.FormatEther(h.service.EntranceFee()),
		"pooledFundsEther":     models.FormatEther(h.service.PooledFunds()),
		"numWords":             services.NumWords,
		"requestConfirmations": services.RequestConfirmations,
	})
}

// ListPlayers returns the players of the current round in entry order.
func (h *HTTPHandler) ListPlayers(c *gin.Context) {
	snap := h.service.Snapshot()
	c.JSON(http.StatusOK, gin.H{"players": snap.Players, "count": len(snap.Players)})
}

// GetPlayer returns the player at the given index.
func (h *HTTPHandler) GetPlayer(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return
	}
	player, ok := h.service.Player(index)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no player at index " + c.Param("index")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "player": player})
}

type enterRequest struct {
	Participant string `json:"participant" binding:"required"`
	// Amount is in ether, e.g. "0.01".
	Amount string `json:"amount" binding:"required"`
}

// Enter admits a participant into the current round.
func (h *HTTPHandler) Enter(c *gin.Context) {
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := models.ParseEther(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.Enter(c.Request.Context(), models.Address(req.Participant), amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"participant":     req.Participant,
		"numberOfPlayers": h.service.NumberOfPlayers(),
		"pooledFunds":     models.FormatEther(h.service.PooledFunds()),
	})
}

// UploadEntriesCSV enters every `participant,amount` row of the uploaded file.
func (h *HTTPHandler) UploadEntriesCSV(c *gin.Context) {
	file, _, err := c.Request.FormFile("entriesCSV")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error retrieving file: " + err.Error()})
		return
	}
	defer file.Close()

	entered, skipped := 0, 0
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "error reading CSV: " + err.Error(), "entered": entered, "skipped": skipped})
			return
		}

		if len(record) != 2 {
			logger.Infof("Skipping malformed entry CSV record: %v", record)
			skipped++
			continue
		}
		participant := strings.TrimSpace(record[0])
		amount, err := models.ParseEther(strings.TrimSpace(record[1]))
		if participant == "" || err != nil {
			logger.Infof("Skipping entry CSV record with invalid fields: %v", record)
			skipped++
			continue
		}

		err = h.service.Enter(c.Request.Context(), models.Address(participant), amount)
		if errors.Is(err, services.ErrRoundNotOpen) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "entered": entered, "skipped": skipped})
			return
		}
		if err != nil {
			logger.Infof("Skipping entry for %s: %v", participant, err)
			skipped++
			continue
		}
		entered++
	}

	c.JSON(http.StatusOK, gin.H{"entered": entered, "skipped": skipped, "numberOfPlayers": h.service.NumberOfPlayers()})
}

// CheckUpkeep reports whether a draw may be triggered.
func (h *HTTPHandler) CheckUpkeep(c *gin.Context) {
	needed, performData := h.service.CheckUpkeep(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"upkeepNeeded": needed, "performData": string(performData)})
}

type performUpkeepRequest struct {
	PerformData string `json:"performData"`
}

// PerformUpkeep triggers a draw. The body is optional.
func (h *HTTPHandler) PerformUpkeep(c *gin.Context) {
	var req performUpkeepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	requestID, err := h.service.PerformUpkeep(c.Request.Context(), []byte(req.PerformData))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"requestId": requestID, "state": h.service.State().String()})
}

// FulfillRandomWords accepts the oracle's callback. The caller identity comes
// from OracleAuthMiddleware.
func (h *HTTPHandler) FulfillRandomWords(c *gin.Context) {
	var payload models.FulfillmentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	words := make([]*big.Int, len(payload.RandomWords))
	for i, s := range payload.RandomWords {
		w, ok := new(big.Int).SetString(s, 10)
		if !ok || w.Sign() < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "random word " + strconv.Itoa(i) + " is not a non-negative base-10 integer"})
			return
		}
		words[i] = w
	}

	err := h.service.FulfillRandomWords(c.Request.Context(), CallerFromContext(c), payload.RequestID, words)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recentWinner": h.service.RecentWinner(), "state": h.service.State().String()})
}

// ListRounds returns settled rounds, newest first.
func (h *HTTPHandler) ListRounds(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	rounds, err := h.opts.Rounds.ListRounds(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("Error listing rounds: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rounds"})
		return
	}
	total, err := h.opts.Rounds.CountRounds(c.Request.Context())
	if err != nil {
		logger.Errorf("Error counting rounds: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count rounds"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rounds": rounds, "total": total})
}

// GetRound returns one settled round.
func (h *HTTPHandler) GetRound(c *gin.Context) {
	number, err := strconv.ParseUint(c.Param("number"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "round number must be a positive integer"})
		return
	}
	round, err := h.opts.Rounds.FindRound(c.Request.Context(), number)
	if errors.Is(err, repositories.ErrRoundNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Errorf("Error finding round %d: %v", number, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to find round"})
		return
	}
	c.JSON(http.StatusOK, round)
}

// ExportRoundsCSV handles the request to download the round history as a CSV file.
func (h *HTTPHandler) ExportRoundsCSV(c *gin.Context) {
	rounds, err := h.opts.Rounds.ListRounds(c.Request.Context(), 0)
	if err != nil {
		logger.Errorf("Error listing rounds: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rounds"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment;filename=lottery_rounds.csv")

	// Add BOM to ensure UTF-8 compatibility in Excel
	c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"round", "requestId", "winner", "prizeWei", "playerCount", "winnerIndex", "randomWord", "settledAt"}); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
		return
	}
	for _, r := range rounds {
		row := []string{
			strconv.FormatUint(r.Number, 10),
			strconv.FormatUint(uint64(r.RequestID), 10),
			string(r.Winner),
			r.Prize,
			strconv.Itoa(r.PlayerCount),
			strconv.Itoa(r.WinnerIndex),
			r.RandomWord,
			r.SettledAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			logger.Infof("Error writing CSV row: %v", err)
			c.String(http.StatusInternalServerError, "Error writing CSV")
			return
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		logger.Infof("Error flushing CSV writer: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
	}
}

// GetAccount returns a wallet balance.
func (h *HTTPHandler) GetAccount(c *gin.Context) {
	balance := h.opts.Accounts.Balance(models.Address(c.Param("address")))
	c.JSON(http.StatusOK, gin.H{
		"address":      c.Param("address"),
		"balance":      balance.String(),
		"balanceEther": models.FormatEther(balance),
	})
}

type fundRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// FundAccount credits a wallet from the development faucet.
func (h *HTTPHandler) FundAccount(c *gin.Context) {
	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := models.ParseEther(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	addr := models.Address(c.Param("address"))
	if err := h.opts.Accounts.Mint(addr, amount); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	balance := h.opts.Accounts.Balance(addr)
	c.JSON(http.StatusOK, gin.H{"address": addr, "balance": balance.String(), "balanceEther": models.FormatEther(balance)})
}

// respondError maps lottery errors to status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	var notNeeded *services.UpkeepNotNeededError
	switch {
	case errors.As(err, &notNeeded):
		status = http.StatusConflict
		body["state"] = notNeeded.State.String()
		body["pooledFunds"] = notNeeded.PooledFunds.String()
		body["playerCount"] = notNeeded.PlayerCount
	case errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrMissingRandomWords),
		errors.Is(err, services.ErrInvalidParticipant),
		errors.Is(err, ledger.ErrSelfTransfer),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrRoundNotOpen), errors.Is(err, services.ErrUpkeepNotNeeded):
		status = http.StatusConflict
	case errors.Is(err, services.ErrUnknownRequest):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrPayoutFailed):
		status = http.StatusBadGateway
	case errors.Is(err, services.ErrUnauthorized):
		status = http.StatusUnauthorized
	}

	if status >= http.StatusInternalServerError {
		logger.Errorf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, body)
}
