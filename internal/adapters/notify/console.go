// Package notify implementa los adapters de ports.Notifier: consola para
// uso interactivo y Telegram para el modo autónomo desatendido.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/oraculo/internal/domain"
)

// Console implementa ports.Notifier escribiendo a un io.Writer.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Deliver imprime el mensaje con timestamp. El recipient se ignora:
// la consola solo tiene un destinatario.
func (c *Console) Deliver(_ context.Context, _ string, message string) error {
	_, err := fmt.Fprintf(c.out, "[%s] %s\n", time.Now().Format("15:04:05"), message)
	return err
}

// PrintOpportunities imprime el ranking de un ciclo de scan. En modo
// table imprime la tabla completa; si no, una línea por oportunidad.
func (c *Console) PrintOpportunities(opps []domain.Opportunity) {
	now := time.Now().Format("15:04:05")
	if len(opps) == 0 {
		fmt.Fprintf(c.out, "[%s] no opportunities found\n", now)
		return
	}

	if c.table {
		c.printTable(opps)
		return
	}
	c.printCompact(opps)
}

func (c *Console) printCompact(opps []domain.Opportunity) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "[%s] %d opportunities\n", now, len(opps))
	for i, o := range opps {
		fmt.Fprintf(c.out, "  %d. [%.0f] %s — %s @ %s (edge %.2f, %s, %s)\n",
			i+1, o.Score,
			domain.TruncateQuestion(o.Market.Question, o.Market.Key(), 50),
			string(o.Direction), domain.FormatProb(o.SuggestedProb),
			o.Edge, o.Confidence, string(o.Label))
	}
}

func (c *Console) printTable(opps []domain.Opportunity) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] %d opportunities\n", now, len(opps))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Score", "Market", "Cat", "Dir", "Prob", "Edge", "Conf", "Label", "Vol", "Closes")

	for i, o := range opps {
		table.Append(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.0f", o.Score),
			domain.TruncateQuestion(o.Market.Question, o.Market.Key(), 38),
			string(o.Category),
			string(o.Direction),
			domain.FormatProb(o.SuggestedProb),
			fmt.Sprintf("%.2f", o.Edge),
			o.Confidence.String(),
			string(o.Label),
			fmt.Sprintf("$%.0f", o.Market.Volume),
			closesLabel(o.Market),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "  Score = compuesto 0-100 | Edge = |precio - base rate| | Label: mispriced > high_volume > closing_soon")
}

func closesLabel(m domain.Market) string {
	if m.EndDate.IsZero() {
		return "-"
	}
	hours := m.HoursToClose()
	if hours < 48 {
		return fmt.Sprintf("%s (!%.0fh)", m.EndDate.Format("01-02"), hours)
	}
	return m.EndDate.Format("2006-01-02")
}
