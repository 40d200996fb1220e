package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tometh04/maxevagestion-sub002/internal/app"
	"github.com/tometh04/maxevagestion-sub002/internal/common/utils"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/account"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/currency"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/ledger"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/money"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/settlement"
	"github.com/tometh04/maxevagestion-sub002/internal/domain/treasury"
)

type Commands struct {
	Balance   BalanceCmd   `cmd:"" help:"Show the derived balance of an account."`
	Breakdown BreakdownCmd `cmd:"" help:"Show an account's movements summed per transaction currency."`
	Account   AccountCmd   `cmd:"" help:"Create and list financial accounts."`
	Rate      RateCmd      `cmd:"" help:"Record and resolve exchange rates."`
	Movement  MovementCmd  `cmd:"" help:"Record or retract ledger movements."`
	Transfer  TransferCmd  `cmd:"" help:"Move money between two accounts of the same currency."`
	Payable   PayableCmd   `cmd:"" help:"Register and inspect operator payables."`
	Settle    SettleCmd    `cmd:"" help:"Pay a batch of payables from one funding account."`
}

// optionalAmount parses an optional decimal flag
func optionalAmount(value, field string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	amount, err := money.ParseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if err := utils.ValidatePositiveAmount(amount, field); err != nil {
		return nil, err
	}
	return &amount, nil
}

type BalanceCmd struct {
	AccountID string `arg:"" help:"Account ID."`
}

func (cmd *BalanceCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	result, err := a.Calculator.GetAccountBalance(ctx, cmd.AccountID)
	if err != nil {
		return err
	}
	return g.emit(fmt.Sprintf("%s: %s", result.Name, money.Format(result.Balance, result.Currency)), result)
}

type BreakdownCmd struct {
	AccountID string `arg:"" help:"Account ID."`
}

func (cmd *BreakdownCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	result, err := a.Calculator.GetBreakdown(ctx, cmd.AccountID)
	if err != nil {
		return err
	}
	return g.emit(fmt.Sprintf("%d movements", result.MovementCount), result)
}

type AccountCmd struct {
	Create  AccountCreateCmd  `cmd:"" help:"Create an account."`
	List    AccountListCmd    `cmd:"" help:"List accounts."`
	Funding AccountFundingCmd `cmd:"" help:"List accounts that can fund payments."`
}

type AccountCreateCmd struct {
	Name     string `arg:"" help:"Account name."`
	Kind     string `help:"Account kind." enum:"cash,checking,savings,credit_card,receivable,payable" default:"checking"`
	Currency string `help:"Account currency." default:"ARS"`
	Opening  string `help:"Opening balance." default:"0"`
	ID       string `help:"Account ID, generated when empty."`
	Category string `help:"Chart-of-accounts category ID."`
}

func (cmd *AccountCreateCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	currencyCode, err := utils.ValidateCurrency(cmd.Currency, a.Config.Pair)
	if err != nil {
		return err
	}
	opening, err := money.ParseAmount(cmd.Opening)
	if err != nil {
		return err
	}

	acc, err := a.Accounts.CreateAccount(ctx, &account.CreateAccountRequest{
		AccountID:      cmd.ID,
		Name:           cmd.Name,
		Kind:           account.Kind(cmd.Kind),
		Currency:       currencyCode,
		OpeningBalance: opening,
		CategoryID:     cmd.Category,
		CreatedBy:      os.Getenv("USER"),
	})
	if err != nil {
		return err
	}
	return g.emit("account "+acc.AccountID+" created", acc)
}

type AccountListCmd struct {
	Currency string `help:"Only accounts in this currency."`
	Kind     string `help:"Only accounts of this kind."`
	All      bool   `help:"Include inactive accounts."`
}

func (cmd *AccountListCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	accounts, err := a.Accounts.ListAccounts(ctx, &account.ListAccountsFilter{
		Currency:        money.Currency(strings.ToUpper(cmd.Currency)),
		Kind:            account.Kind(cmd.Kind),
		IncludeInactive: cmd.All,
	})
	if err != nil {
		return err
	}
	return g.emit(fmt.Sprintf("%d accounts", len(accounts)), accounts)
}

type AccountFundingCmd struct {
	Currency string `help:"Only accounts in this currency."`
}

func (cmd *AccountFundingCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	accounts, err := a.Accounts.ListFundingAccounts(ctx, money.Currency(strings.ToUpper(cmd.Currency)))
	if err != nil {
		return err
	}
	return g.emit(fmt.Sprintf("%d funding accounts", len(accounts)), accounts)
}

type RateCmd struct {
	Set RateSetCmd `cmd:"" help:"Record the rate of a date."`
	Get RateGetCmd `cmd:"" help:"Resolve the rate that applies to a date."`
}

type RateSetCmd struct {
	Date   string `arg:"" help:"Rate date (YYYY-MM-DD)."`
	Rate   string `arg:"" help:"Reporting-currency units per secondary-currency unit."`
	Source string `help:"Origin of the rate." default:"manual"`
}

func (cmd *RateSetCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	rate, err := money.ParseAmount(cmd.Rate)
	if err != nil {
		return err
	}
	recorded, err := a.Rates.SetRate(ctx, cmd.Date, rate, cmd.Source)
	if err != nil {
		return err
	}
	return g.emit("rate recorded for "+recorded.Date, recorded)
}

type RateGetCmd struct {
	Date string `arg:"" optional:"" help:"Date to resolve (YYYY-MM-DD), defaults to today."`
}

func (cmd *RateGetCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	date, err := utils.ParseOptionalDate(cmd.Date, time.Now())
	if err != nil {
		return err
	}
	resolution := a.Rates.Resolve(ctx, date)
	if resolution.Degraded() && !g.JSON {
		printInfof(os.Stderr, "no rate stored on or before %s, using the fallback", date.Format(currency.DateLayout))
	}
	return g.emit(fmt.Sprintf("%s (%s)", resolution.Rate, resolution.Source), resolution)
}

type MovementCmd struct {
	Add     MovementAddCmd     `cmd:"" help:"Record a movement."`
	Retract MovementRetractCmd `cmd:"" help:"Remove a movement recorded by mistake."`
}

type MovementAddCmd struct {
	Account        string `required:"" help:"Account ID."`
	Type           string `required:"" help:"Movement type." enum:"INCOME,EXPENSE,FX_GAIN,FX_LOSS,COMMISSION,OPERATOR_PAYMENT"`
	Currency       string `required:"" help:"Transaction currency."`
	Amount         string `required:"" help:"Amount in the transaction currency."`
	Rate           string `help:"Exchange rate, resolved from the date when empty."`
	Date           string `help:"Movement date (YYYY-MM-DD), defaults to today."`
	Concept        string `help:"Description."`
	Operation      string `help:"Travel operation ID."`
	Seller         string `help:"Seller ID for commissions."`
	Operator       string `help:"Operator ID for operator payments."`
	Receipt        string `help:"Receipt number."`
	IdempotencyKey string `help:"Key making retries safe."`
}

func (cmd *MovementAddCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	movementType, err := ledger.ParseMovementType(cmd.Type)
	if err != nil {
		return err
	}
	currencyCode, err := utils.ValidateCurrency(cmd.Currency, a.Config.Pair)
	if err != nil {
		return err
	}
	amount, err := money.ParseAmount(cmd.Amount)
	if err != nil {
		return err
	}
	rate, err := optionalAmount(cmd.Rate, "rate")
	if err != nil {
		return err
	}

	result, err := a.Treasury.CreateLedgerMovement(ctx, &ledger.Draft{
		AccountID:      cmd.Account,
		OperationID:    cmd.Operation,
		Type:           movementType,
		Currency:       currencyCode,
		OriginalAmount: amount,
		ExchangeRate:   rate,
		Concept:        cmd.Concept,
		SellerID:       cmd.Seller,
		OperatorID:     cmd.Operator,
		ReceiptNumber:  cmd.Receipt,
		MovementDate:   cmd.Date,
		IdempotencyKey: cmd.IdempotencyKey,
		CreatedBy:      os.Getenv("USER"),
	})
	if err != nil {
		return err
	}
	if result.Replayed {
		return g.emit("movement already recorded under this idempotency key", result.Movement)
	}
	return g.emit("movement "+result.Movement.MovementID+" recorded", result.Movement)
}

type MovementRetractCmd struct {
	MovementID string `arg:"" help:"Movement ID."`
	Yes        bool   `help:"Do not ask for confirmation." short:"y"`
}

func (cmd *MovementRetractCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	if !cmd.Yes {
		ok, err := confirm(fmt.Sprintf("Retract movement %s? The account balance will change.", cmd.MovementID))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("retraction of %s not confirmed; pass --yes to skip the prompt", cmd.MovementID)
		}
	}

	movement, err := a.Treasury.RetractMovement(ctx, cmd.MovementID)
	if err != nil {
		return err
	}
	return g.emit("movement "+movement.MovementID+" retracted", movement)
}

type TransferCmd struct {
	From           string `required:"" help:"Source account ID."`
	To             string `required:"" help:"Destination account ID."`
	Amount         string `required:"" help:"Amount to move."`
	Currency       string `required:"" help:"Currency of both accounts."`
	Rate           string `help:"Exchange rate for the reporting equivalent."`
	Date           string `help:"Transfer date (YYYY-MM-DD), defaults to today."`
	Notes          string `help:"Notes."`
	IdempotencyKey string `help:"Key making retries safe."`
}

func (cmd *TransferCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	currencyCode, err := utils.ValidateCurrency(cmd.Currency, a.Config.Pair)
	if err != nil {
		return err
	}
	amount, err := money.ParseAmount(cmd.Amount)
	if err != nil {
		return err
	}
	rate, err := optionalAmount(cmd.Rate, "rate")
	if err != nil {
		return err
	}

	result, err := a.Treasury.TransferBetweenAccounts(ctx, &treasury.TransferRequest{
		FromAccountID:  cmd.From,
		ToAccountID:    cmd.To,
		Amount:         amount,
		Currency:       currencyCode,
		Date:           cmd.Date,
		Notes:          cmd.Notes,
		Rate:           rate,
		IdempotencyKey: cmd.IdempotencyKey,
		CreatedBy:      os.Getenv("USER"),
	})
	if err != nil {
		return err
	}
	return g.emit("transfer recorded", result)
}

type PayableCmd struct {
	Create PayableCreateCmd `cmd:"" help:"Register a payable."`
	Show   PayableShowCmd   `cmd:"" help:"Show a payable."`
}

type PayableCreateCmd struct {
	Amount    string `arg:"" help:"Amount owed."`
	Currency  string `help:"Currency of the debt." default:"ARS"`
	ID        string `help:"Payable ID, generated when empty."`
	Operation string `help:"Travel operation ID."`
	Operator  string `help:"Tour operator ID."`
}

func (cmd *PayableCreateCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	currencyCode, err := utils.ValidateCurrency(cmd.Currency, a.Config.Pair)
	if err != nil {
		return err
	}
	amount, err := money.ParseAmount(cmd.Amount)
	if err != nil {
		return err
	}

	payable, err := a.Settlements.CreatePayable(ctx, &settlement.CreatePayableRequest{
		PayableID:   cmd.ID,
		OperationID: cmd.Operation,
		OperatorID:  cmd.Operator,
		Currency:    currencyCode,
		TotalAmount: amount,
	})
	if err != nil {
		return err
	}
	return g.emit("payable "+payable.PayableID+" created", payable)
}

type PayableShowCmd struct {
	PayableID string `arg:"" help:"Payable ID."`
}

func (cmd *PayableShowCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	payable, err := a.Settlements.GetPayable(ctx, cmd.PayableID)
	if err != nil {
		return err
	}
	return g.emit(money.Format(payable.Outstanding(), payable.Currency)+" outstanding", payable)
}

type SettleCmd struct {
	Funding        string   `required:"" help:"Funding account ID."`
	Currency       string   `required:"" help:"Payment currency."`
	Item           []string `required:"" help:"Payable to settle as ID=AMOUNT; repeat for each payable."`
	Rate           string   `help:"Exchange rate, resolved from the date when empty."`
	Date           string   `help:"Payment date (YYYY-MM-DD), defaults to today."`
	Receipt        string   `help:"Payment receipt reference."`
	Notes          string   `help:"Notes."`
	CostAccount    string   `help:"Account receiving the cost recognition."`
	IdempotencyKey string   `help:"Key making retries safe."`
}

func (cmd *SettleCmd) Run(ctx context.Context, g *Globals, a *app.App) error {
	currencyCode, err := utils.ValidateCurrency(cmd.Currency, a.Config.Pair)
	if err != nil {
		return err
	}
	rate, err := optionalAmount(cmd.Rate, "rate")
	if err != nil {
		return err
	}
	items, err := parseItems(cmd.Item)
	if err != nil {
		return err
	}

	report, err := a.Settlements.Process(ctx, &settlement.Request{
		Items:            items,
		FundingAccountID: cmd.Funding,
		Currency:         currencyCode,
		Rate:             rate,
		ReceiptRef:       cmd.Receipt,
		Date:             cmd.Date,
		Notes:            cmd.Notes,
		CostAccountID:    cmd.CostAccount,
		IdempotencyKey:   cmd.IdempotencyKey,
		CreatedBy:        os.Getenv("USER"),
	})
	if err != nil {
		return err
	}

	if !g.JSON {
		for _, itemErr := range report.Errors {
			printError(os.Stderr, fmt.Sprintf("%s [%s] %s", itemErr.PayableID, itemErr.Stage, itemErr.Message))
		}
	}
	if err := g.emit(fmt.Sprintf("batch %s: %s", report.BatchID, report.Status), report); err != nil {
		return err
	}
	if report.Status == settlement.StatusFailed {
		return fmt.Errorf("no payable was settled")
	}
	return nil
}

// parseItems reads ID=AMOUNT pairs
func parseItems(values []string) ([]settlement.Item, error) {
	items := make([]settlement.Item, 0, len(values))
	for _, value := range values {
		id, amountText, ok := strings.Cut(value, "=")
		if !ok {
			return nil, fmt.Errorf("item %q must be ID=AMOUNT", value)
		}
		if err := utils.ValidateRequiredString(id, "payable ID"); err != nil {
			return nil, fmt.Errorf("item %q: %w", value, err)
		}
		amount, err := money.ParseAmount(amountText)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", value, err)
		}
		items = append(items, settlement.Item{PayableID: id, Amount: amount})
	}
	return items, nil
}
