package webapi_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/service/audit"
	pkgtestutils "github.com/amirasaad/ledger/pkg/testutils"
	"github.com/amirasaad/ledger/webapi/common"
	ledgerweb "github.com/amirasaad/ledger/webapi/ledger"
	reconweb "github.com/amirasaad/ledger/webapi/reconciliation"
	"github.com/amirasaad/ledger/webapi/testutils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type APITestSuite struct {
	testutils.E2ETestSuite
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) data(resp *http.Response, out any) envelope {
	env := pkgtestutils.DecodeJSON[envelope](s.T(), resp)
	if out != nil {
		s.Require().NoError(json.Unmarshal(env.Data, out))
	}
	return env
}

func (s *APITestSuite) TestHealthAndMetrics() {
	resp := pkgtestutils.MakeRequestWithApp(s.Fiber, fiber.MethodGet, "/", "", "")
	resp.Body.Close() //nolint:errcheck
	s.Equal(fiber.StatusOK, resp.StatusCode)

	acc := s.OpenAccount()
	s.Deposit(acc, "10.00")

	resp = pkgtestutils.MakeRequestWithApp(s.Fiber, fiber.MethodGet, "/metrics", "", "")
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal(fiber.StatusOK, resp.StatusCode)
	s.Contains(string(body), "ledger_operations_total")
}

func (s *APITestSuite) TestSwaggerDoc() {
	resp := pkgtestutils.MakeRequestWithApp(s.Fiber, fiber.MethodGet, "/swagger/doc.json", "", "")
	defer resp.Body.Close() //nolint:errcheck
	s.Equal(fiber.StatusOK, resp.StatusCode)

	var doc struct {
		Info  struct{ Title string } `json:"info"`
		Paths map[string]any         `json:"paths"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&doc))
	s.Equal("Ledger API", doc.Info.Title)
	s.Contains(doc.Paths, "/ledger/deposit")
	s.Contains(doc.Paths, "/reconciliations/{id}/auto-match")
}

func (s *APITestSuite) TestRoutesRequireToken() {
	resp := pkgtestutils.MakeRequestWithApp(s.Fiber, fiber.MethodGet, "/audit/consistency", "", "")
	resp.Body.Close() //nolint:errcheck
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)

	resp = pkgtestutils.MakeRequestWithApp(s.Fiber, fiber.MethodGet, "/audit/consistency", "", "not-a-jwt")
	resp.Body.Close() //nolint:errcheck
	s.NotEqual(fiber.StatusOK, resp.StatusCode)
}

func (s *APITestSuite) TestDepositBalanceEntriesVerify() {
	acc := s.OpenAccount()

	resp := s.Do(fiber.MethodPost, "/ledger/deposit",
		fmt.Sprintf(`{"account_id":%q,"amount":"1000.00","description":"Opening deposit"}`, acc.ID))
	s.Equal(fiber.StatusCreated, resp.StatusCode)
	var res dto.Result
	s.data(resp, &res)
	s.Equal("COMPLETED", string(res.Status))

	var bal ledgerweb.BalanceDTO
	s.data(s.Do(fiber.MethodGet, "/ledger/accounts/"+acc.ID.String()+"/balance", ""), &bal)
	s.True(bal.AvailableBalance.Equal(decimal.RequireFromString("1000")), bal.AvailableBalance.String())
	s.Equal(res.TransactionID.String(), bal.LastTransactionID)

	var page ledgerweb.EntryPageDTO
	s.data(s.Do(fiber.MethodGet, "/ledger/accounts/"+acc.ID.String()+"/entries?limit=10", ""), &page)
	s.Require().Len(page.Entries, 1)
	s.Equal("CREDIT", page.Entries[0].EntryType)
	s.Empty(page.NextCursor)

	var report struct {
		Valid      bool `json:"valid"`
		EntryCount int  `json:"entry_count"`
	}
	s.data(s.Do(fiber.MethodGet, "/ledger/transactions/"+res.TransactionID.String()+"/verify", ""), &report)
	s.True(report.Valid)
	s.Equal(2, report.EntryCount)
}

func (s *APITestSuite) TestWithdrawInsufficientFunds() {
	acc := s.OpenAccount()
	s.Deposit(acc, "100.00")

	resp := s.Do(fiber.MethodPost, "/ledger/withdraw",
		fmt.Sprintf(`{"account_id":%q,"amount":"500.00"}`, acc.ID))
	s.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)
	var res dto.Result
	env := s.data(resp, &res)
	s.Equal("Insufficient balance", env.Message)
	s.Equal("FAILED", string(res.Status))

	var bal ledgerweb.BalanceDTO
	s.data(s.Do(fiber.MethodGet, "/ledger/accounts/"+acc.ID.String()+"/balance", ""), &bal)
	s.True(bal.AvailableBalance.Equal(decimal.RequireFromString("100")), bal.AvailableBalance.String())
}

func (s *APITestSuite) TestIdempotencyKeyReplayAndConflict() {
	acc := s.OpenAccount()
	key := map[string]string{ledgerweb.IdempotencyKeyHeader: "dep-" + acc.ID.String()}
	body := fmt.Sprintf(`{"account_id":%q,"amount":"25.00"}`, acc.ID)

	var first, second dto.Result
	resp := s.DoWithHeaders(fiber.MethodPost, "/ledger/deposit", body, key)
	s.Equal(fiber.StatusCreated, resp.StatusCode)
	s.data(resp, &first)
	s.data(s.DoWithHeaders(fiber.MethodPost, "/ledger/deposit", body, key), &second)
	s.Equal(first.TransactionID, second.TransactionID)

	resp = s.DoWithHeaders(fiber.MethodPost, "/ledger/deposit",
		fmt.Sprintf(`{"account_id":%q,"amount":"26.00"}`, acc.ID), key)
	pd := pkgtestutils.DecodeJSON[common.ProblemDetails](s.T(), resp)
	s.Equal(fiber.StatusConflict, pd.Status)

	var bal ledgerweb.BalanceDTO
	s.data(s.Do(fiber.MethodGet, "/ledger/accounts/"+acc.ID.String()+"/balance", ""), &bal)
	s.True(bal.AvailableBalance.Equal(decimal.RequireFromString("25")), bal.AvailableBalance.String())
}

func (s *APITestSuite) TestTransferAndReverse() {
	a, b := s.OpenAccount(), s.OpenAccount()
	s.Deposit(a, "1000.00")

	var res dto.Result
	resp := s.Do(fiber.MethodPost, "/ledger/transfer",
		fmt.Sprintf(`{"from_account_id":%q,"to_account_id":%q,"amount":"250.00"}`, a.ID, b.ID))
	s.Equal(fiber.StatusCreated, resp.StatusCode)
	s.data(resp, &res)

	resp = s.Do(fiber.MethodPost, "/ledger/transactions/"+res.TransactionID.String()+"/reverse", `{}`)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	resp.Body.Close() //nolint:errcheck

	resp = s.Do(fiber.MethodPost, "/ledger/transactions/"+res.TransactionID.String()+"/reverse",
		`{"reason":"sent to wrong account"}`)
	s.Equal(fiber.StatusCreated, resp.StatusCode)
	resp.Body.Close() //nolint:errcheck

	var bal ledgerweb.BalanceDTO
	s.data(s.Do(fiber.MethodGet, "/ledger/accounts/"+b.ID.String()+"/balance", ""), &bal)
	s.True(bal.AvailableBalance.IsZero())

	resp = s.Do(fiber.MethodPost, "/ledger/transactions/"+res.TransactionID.String()+"/reverse",
		`{"reason":"again"}`)
	s.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close() //nolint:errcheck
}

func (s *APITestSuite) TestInvalidPathID() {
	resp := s.Do(fiber.MethodGet, "/ledger/accounts/not-a-uuid/balance", "")
	pd := pkgtestutils.DecodeJSON[common.ProblemDetails](s.T(), resp)
	s.Equal(fiber.StatusBadRequest, pd.Status)

	resp = s.Do(fiber.MethodGet, "/ledger/accounts/"+uuid.NewString()+"/balance", "")
	resp.Body.Close() //nolint:errcheck
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
}

func (s *APITestSuite) TestAuditCheckAndRebuild() {
	acc := s.OpenAccount()
	s.Deposit(acc, "300.00")

	var report audit.Report
	s.data(s.Do(fiber.MethodGet, "/audit/consistency", ""), &report)
	s.Equal(audit.StatusHealthy, report.Status)

	pkgtestutils.CorruptBalance(s.T(), s.DB, acc.ID, "999.00")
	s.data(s.Do(fiber.MethodGet, "/audit/consistency?detailed=true", ""), &report)
	s.NotEqual(audit.StatusHealthy, report.Status)
	s.Require().Len(report.Mismatches, 1)
	s.Equal(acc.ID, report.Mismatches[0].AccountID)

	var rebuilt audit.RebuildReport
	s.data(s.Do(fiber.MethodPost, "/audit/rebuild", ""), &rebuilt)
	s.Equal(2, rebuilt.AccountsRefreshed)

	var bal ledgerweb.BalanceDTO
	s.data(s.Do(fiber.MethodGet, "/ledger/accounts/"+acc.ID.String()+"/balance", ""), &bal)
	s.True(bal.AvailableBalance.Equal(decimal.RequireFromString("300")), bal.AvailableBalance.String())
}

func (s *APITestSuite) TestReconciliationFlow() {
	acc := s.OpenAccount()
	resp := s.Do(fiber.MethodPost, "/ledger/deposit",
		fmt.Sprintf(`{"account_id":%q,"amount":"150.00","description":"Invoice 42 payment"}`, acc.ID))
	var deposit dto.Result
	s.data(resp, &deposit)

	var rec reconweb.ReconciliationDTO
	resp = s.Do(fiber.MethodPost, "/reconciliations", `{"name":"October","source":"bank-csv"}`)
	s.Equal(fiber.StatusCreated, resp.StatusCode)
	s.data(resp, &rec)
	s.Equal("OPEN", rec.Status)
	base := "/reconciliations/" + rec.ID

	today := time.Now().UTC().Format(time.DateOnly)
	csv := strings.Join([]string{
		"date,description,amount,reference",
		today + ",INVOICE 42 payment,150.00,",
		"not-a-date,Broken,1.00,",
	}, "\n")
	var imported dto.ImportReport
	resp = s.DoWithHeaders(fiber.MethodPost, base+"/items", csv, map[string]string{"Content-Type": "text/csv"})
	s.Equal(fiber.StatusMultiStatus, resp.StatusCode)
	s.data(resp, &imported)
	s.Equal(1, imported.Imported)
	s.Require().Len(imported.Errors, 1)
	s.Equal(3, imported.Errors[0].Row)

	var matched dto.AutoMatchReport
	s.data(s.Do(fiber.MethodPost, base+"/auto-match", ""), &matched)
	s.Equal(1, matched.Matched)

	var items []reconweb.ItemDTO
	s.data(s.Do(fiber.MethodGet, base+"/items?status=auto_matched", ""), &items)
	s.Require().Len(items, 1)
	s.Equal(deposit.TransactionID.String(), items[0].MatchedTransactionID)
	s.Require().NotNil(items[0].MatchConfidence)

	var item reconweb.ItemDTO
	resp = s.Do(fiber.MethodPost, base+"/items/"+items[0].ID+"/unmatch", `{"reason":"wrong invoice"}`)
	s.Equal(fiber.StatusOK, resp.StatusCode)
	s.data(resp, &item)
	s.Equal("PENDING", item.MatchStatus)

	resp = s.Do(fiber.MethodPost, base+"/items/"+items[0].ID+"/match",
		fmt.Sprintf(`{"transaction_id":%q}`, deposit.TransactionID))
	s.data(resp, &item)
	s.Equal("MANUAL_MATCHED", item.MatchStatus)
	s.Nil(item.MatchConfidence)

	resp = s.Do(fiber.MethodPost, base+"/close", "")
	s.Equal(fiber.StatusOK, resp.StatusCode)
	s.data(resp, &rec)
	s.Equal("CLOSED", rec.Status)

	resp = s.Do(fiber.MethodPost, base+"/items/"+items[0].ID+"/dispute", `{"reason":"late"}`)
	pd := pkgtestutils.DecodeJSON[common.ProblemDetails](s.T(), resp)
	s.Equal(fiber.StatusConflict, pd.Status)
}

func (s *APITestSuite) TestReconciliationUnknownStatusFilter() {
	var rec reconweb.ReconciliationDTO
	s.data(s.Do(fiber.MethodPost, "/reconciliations", `{"name":"November"}`), &rec)

	resp := s.Do(fiber.MethodGet, "/reconciliations/"+rec.ID+"/items?status=maybe", "")
	resp.Body.Close() //nolint:errcheck
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
}
