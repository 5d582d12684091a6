package analysis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/2beens/gymhrv/internal/store"
)

const dateLayout = "2006-01-02"

func storeKinds() []Kind {
	return []Kind{
		{
			ID:    KindMembersList,
			Title: "Members",
			Data:  DataStoreList,
			Graph: membersGraph,
			Table: membersTable,
			Text:  membersText,
		},
		{
			ID:    KindSubscriptionsList,
			Title: "Subscriptions",
			Data:  DataStoreList,
			Graph: subscriptionsGraph,
			Table: subscriptionsTable,
			Text:  subscriptionsText,
		},
		{
			ID:    KindFinanceSummary,
			Title: "Finance summary",
			Data:  DataStoreList,
			Graph: financeGraph,
			Table: financeTable,
			Text:  financeText,
		},
		{
			ID:           KindComprehensiveReport,
			Title:        "Comprehensive user report",
			Data:         DataComprehensive,
			UniqueGlobal: true,
			Graph:        comprehensiveGraph,
			Table:        comprehensiveTable,
			Text:         comprehensiveText,
		},
	}
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Members

func members(ctx context.Context, in Input) ([]Member, error) {
	list, err := loadAll[Member](ctx, KindMembersList, in.Store, store.CollectionMembers)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, noData(KindMembersList, noRecordsMessage)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return strings.ToLower(list[i].FullName()) < strings.ToLower(list[j].FullName())
	})
	return list, nil
}

func activeCount(list []Member) int {
	n := 0
	for _, m := range list {
		if m.Active {
			n++
		}
	}
	return n
}

func membersGraph(ctx context.Context, in Input) (Artifact, error) {
	list, err := members(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	active := activeCount(list)
	svg, err := barSVG("Members", "members", []chart.Value{
		{Label: "active", Value: float64(active)},
		{Label: "inactive", Value: float64(len(list) - active)},
	})
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{SVG: svg}, nil
}

func membersTable(ctx context.Context, in Input) (Artifact, error) {
	list, err := members(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	table := &Table{Columns: []string{"Name", "Email", "Phone", "Joined", "Active"}}
	for _, m := range list {
		table.Rows = append(table.Rows, []string{
			m.FullName(),
			m.Email,
			m.Phone,
			m.JoinedAt.Format(dateLayout),
			strconv.FormatBool(m.Active),
		})
	}
	return Artifact{Table: table}, nil
}

func membersText(ctx context.Context, in Input) (Artifact, error) {
	list, err := members(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d members, %d active\n", len(list), activeCount(list))
	for _, m := range list {
		status := "inactive"
		if m.Active {
			status = "active"
		}
		fmt.Fprintf(&sb, "- %s <%s> (%s)\n", m.FullName(), m.Email, status)
	}
	return Artifact{Text: sb.String()}, nil
}

// Subscriptions

func subscriptions(ctx context.Context, in Input) ([]Subscription, error) {
	list, err := loadAll[Subscription](ctx, KindSubscriptionsList, in.Store, store.CollectionSubscriptions)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, noData(KindSubscriptionsList, noRecordsMessage)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].StartDate.After(list[j].StartDate)
	})
	return list, nil
}

// plans returns subscription counts per plan, ordered by plan name.
func plans(list []Subscription) ([]string, map[string]int) {
	counts := make(map[string]int)
	for _, s := range list {
		counts[s.Plan]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, counts
}

func subscriptionsGraph(ctx context.Context, in Input) (Artifact, error) {
	list, err := subscriptions(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	names, counts := plans(list)
	bars := make([]chart.Value, len(names))
	for i, name := range names {
		bars[i] = chart.Value{Label: name, Value: float64(counts[name])}
	}
	svg, err := barSVG("Subscriptions per plan", "subscriptions", bars)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{SVG: svg}, nil
}

func subscriptionsTable(ctx context.Context, in Input) (Artifact, error) {
	list, err := subscriptions(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	table := &Table{Columns: []string{"Member", "Plan", "Price", "Start", "End", "Status"}}
	for _, s := range list {
		table.Rows = append(table.Rows, []string{
			s.MemberID,
			s.Plan,
			money(s.Price),
			s.StartDate.Format(dateLayout),
			s.EndDate.Format(dateLayout),
			s.Status,
		})
	}
	return Artifact{Table: table}, nil
}

func subscriptionsText(ctx context.Context, in Input) (Artifact, error) {
	list, err := subscriptions(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	names, counts := plans(list)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d subscriptions\n", len(list))
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s: %d\n", name, counts[name])
	}
	return Artifact{Text: sb.String()}, nil
}

// Finance

func transactions(ctx context.Context, in Input) ([]Transaction, error) {
	list, err := loadAll[Transaction](ctx, KindFinanceSummary, in.Store, store.CollectionFinance)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, noData(KindFinanceSummary, noRecordsMessage)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Date.After(list[j].Date)
	})
	return list, nil
}

func financeGraph(ctx context.Context, in Input) (Artifact, error) {
	list, err := transactions(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	t := totals(list)
	svg, err := barSVG("Income and expenses", "amount", []chart.Value{
		{Label: "income", Value: t.Income},
		{Label: "expense", Value: t.Expense},
	})
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{SVG: svg}, nil
}

func financeTable(ctx context.Context, in Input) (Artifact, error) {
	list, err := transactions(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	table := &Table{Columns: []string{"Date", "Type", "Category", "Amount", "Description"}}
	for _, tx := range list {
		table.Rows = append(table.Rows, []string{
			tx.Date.Format(dateLayout),
			string(tx.Type),
			tx.Category,
			money(tx.Amount),
			tx.Description,
		})
	}
	t := totals(list)
	table.Rows = append(table.Rows,
		[]string{"", "total income", "", money(t.Income), ""},
		[]string{"", "total expense", "", money(t.Expense), ""},
		[]string{"", "balance", "", money(t.Balance()), ""},
	)
	return Artifact{Table: table}, nil
}

func financeText(ctx context.Context, in Input) (Artifact, error) {
	list, err := transactions(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	t := totals(list)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transactions: %d\n", len(list))
	fmt.Fprintf(&sb, "Income: %s\n", money(t.Income))
	fmt.Fprintf(&sb, "Expense: %s\n", money(t.Expense))
	fmt.Fprintf(&sb, "Balance: %s\n", money(t.Balance()))
	return Artifact{Text: sb.String()}, nil
}

// Comprehensive report

type overview struct {
	profile       *UserProfile
	members       int
	activeMembers int
	subscriptions int
	activeSubs    int
	finance       financeTotals
	transactions  int
}

func loadOverview(ctx context.Context, in Input) (overview, error) {
	kind := KindComprehensiveReport

	profile, err := loadProfile(ctx, kind, in.Store, in.UserID)
	if err != nil {
		return overview{}, err
	}
	memberList, err := loadAll[Member](ctx, kind, in.Store, store.CollectionMembers)
	if err != nil {
		return overview{}, err
	}
	subList, err := loadAll[Subscription](ctx, kind, in.Store, store.CollectionSubscriptions)
	if err != nil {
		return overview{}, err
	}
	txList, err := loadAll[Transaction](ctx, kind, in.Store, store.CollectionFinance)
	if err != nil {
		return overview{}, err
	}

	if profile == nil && len(memberList) == 0 && len(subList) == 0 && len(txList) == 0 {
		return overview{}, noData(kind, noRecordsMessage)
	}

	o := overview{
		profile:       profile,
		members:       len(memberList),
		activeMembers: activeCount(memberList),
		subscriptions: len(subList),
		finance:       totals(txList),
		transactions:  len(txList),
	}
	for _, s := range subList {
		if s.Status == SubscriptionActive {
			o.activeSubs++
		}
	}
	return o, nil
}

func (o overview) rows() [][]string {
	var rows [][]string
	if o.profile != nil {
		rows = append(rows,
			[]string{"User", o.profile.Name},
			[]string{"Email", o.profile.Email},
			[]string{"Gym", o.profile.GymName},
		)
	}
	rows = append(rows,
		[]string{"Members", strconv.Itoa(o.members)},
		[]string{"Active members", strconv.Itoa(o.activeMembers)},
		[]string{"Subscriptions", strconv.Itoa(o.subscriptions)},
		[]string{"Active subscriptions", strconv.Itoa(o.activeSubs)},
		[]string{"Transactions", strconv.Itoa(o.transactions)},
		[]string{"Income", money(o.finance.Income)},
		[]string{"Expense", money(o.finance.Expense)},
		[]string{"Balance", money(o.finance.Balance())},
	)
	return rows
}

func comprehensiveGraph(ctx context.Context, in Input) (Artifact, error) {
	o, err := loadOverview(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	svg, err := barSVG("Gym overview", "count", []chart.Value{
		{Label: "members", Value: float64(o.members)},
		{Label: "active members", Value: float64(o.activeMembers)},
		{Label: "subscriptions", Value: float64(o.subscriptions)},
		{Label: "active subs", Value: float64(o.activeSubs)},
	})
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{SVG: svg}, nil
}

func comprehensiveTable(ctx context.Context, in Input) (Artifact, error) {
	o, err := loadOverview(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Table: &Table{
		Columns: []string{"Item", "Value"},
		Rows:    o.rows(),
	}}, nil
}

func comprehensiveText(ctx context.Context, in Input) (Artifact, error) {
	o, err := loadOverview(ctx, in)
	if err != nil {
		return Artifact{}, err
	}
	var sb strings.Builder
	for _, row := range o.rows() {
		fmt.Fprintf(&sb, "%s: %s\n", row[0], row[1])
	}
	return Artifact{Text: sb.String()}, nil
}
