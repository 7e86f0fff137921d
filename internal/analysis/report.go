package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/notaops/fiscal-cli/internal/model"
	"github.com/notaops/fiscal-cli/internal/sequence"
)

// Artifact names written into every job directory. The Portuguese names are
// load-bearing: downstream accounting tooling picks them up by name.
const (
	SummaryName  = "relatorio_sumario.txt"
	CSVName      = "relatorio_detalhado.csv"
	XLSXName     = "relatorio_detalhado.xlsx"
	ManifestName = "manifest.yaml"
)

// SummaryMeta carries the run-level fields the summary header needs.
type SummaryMeta struct {
	Source    string
	Timestamp time.Time
}

// groupKey identifies one numbering sequence: fiscal model plus series.
type groupKey struct {
	model  string
	series string
}

// BuildSummary renders the human-readable summary report. Output is
// deterministic for a given document set and meta: documents, status labels,
// and sequence groups are all sorted internally, so caller order never
// leaks into the report.
func BuildSummary(docs []model.Document, meta SummaryMeta) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	statusTotals := StatusTotals(docs)
	errorCount := 0
	for i := range docs {
		if docs[i].HasErrors() {
			errorCount++
		}
	}

	line(strings.Repeat("=", 80))
	line(center("Relatório Sumário de Análise e Cópia de XMLs", 80))
	line(strings.Repeat("=", 80))
	line("")
	line("Data e Hora: %s", meta.Timestamp.Format("02/01/2006 15:04:05"))
	if meta.Source != "" {
		line("Origem: %s", meta.Source)
	}
	line("Total de XMLs Processados: %d", len(docs))
	line("Arquivos com erros: %d", errorCount)
	line("")

	line("--- Sumário de Status dos Documentos ---")
	labels := make([]string, 0, len(statusTotals))
	for label := range statusTotals {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		count := statusTotals[label]
		pct := 0.0
		if len(docs) > 0 {
			pct = float64(count) / float64(len(docs)) * 100
		}
		line("- %-25s: %d (%.1f%%)", label, count, pct)
	}

	if unknown := unknownDocs(docs); len(unknown) > 0 {
		line("")
		line("  --- Arquivos com Status Desconhecido ---")
		for _, d := range unknown {
			line("  - %s (Motivo: %s)", d.SourceName, strings.Join(d.Errors, "; "))
		}
	}
	line("")

	line(strings.Repeat("-", 80))
	line(center("Análise de Sequência de Notas Fiscais Autorizadas", 80))
	line(strings.Repeat("-", 80))
	line("")
	groups, keys := sequenceGroups(docs)
	if len(keys) == 0 {
		line("Nenhuma NF-e autorizada encontrada para análise de sequência.")
		line("")
	} else {
		for _, key := range keys {
			rep := sequence.Analyze(groups[key])
			line("Modelo: %s | Série: %s | Documentos: %d | Intervalo: %d-%d",
				key.model, key.series, rep.Observed, rep.Min, rep.Max)
			if rep.Complete() {
				line("  └─ Status: Sequência completa!")
			} else {
				line("  └─ Status: Incompleta. Lacunas (%d, %.1f%% do intervalo): %s",
					len(rep.Missing), rep.MissingPercent(), rep.MissingRuns())
			}
			line("")
		}
	}

	line(strings.Repeat("=", 80))
	line(center("Resumo dos Arquivos Copiados", 80))
	line(strings.Repeat("=", 80))
	line("")
	copied := copiedDocs(docs)
	if len(copied) == 0 {
		line("Nenhum arquivo correspondente aos critérios foi copiado.")
	} else {
		line("Modelo  Série   Número(s)       Data Emissão Status")
		line("%-7s %-7s %-15s %-12s %s",
			strings.Repeat("-", 7), strings.Repeat("-", 7),
			strings.Repeat("-", 15), strings.Repeat("-", 12), strings.Repeat("-", 30))
		for _, d := range copied {
			number := d.NumberStart
			if d.NumberEnd != d.NumberStart {
				number = d.NumberStart + "-" + d.NumberEnd
			}
			line("%-7s %-7s %-15s %-12s %s",
				d.Model, d.Series, number, formatIssueDate(d.IssuedAt),
				d.StatusCode+" - "+d.StatusReason)
		}
	}
	line("")

	line(strings.Repeat("=", 80))
	line("Total de autorizadas: %d | Total de arquivos com erros: %d",
		statusTotals[string(model.DocTypeAuthorized)], errorCount)

	return b.String()
}

// StatusTotals counts documents per type label.
func StatusTotals(docs []model.Document) map[string]int {
	totals := make(map[string]int, len(docs))
	for i := range docs {
		totals[string(docs[i].Type)]++
	}
	return totals
}

// DetailHeader is the exact column schema of the detail exports. Column names
// and order are fixed: spreadsheets built on top of the CSV key on them.
var DetailHeader = []string{
	"arquivo_origem", "tipo_documento", "status_sefaz_cod", "status_sefaz_motivo",
	"numero_inicial", "numero_final", "serie", "modelo", "data_emissao",
	"chave_acesso", "foi_copiado", "erros",
}

// DetailRows renders one row per document in DetailHeader order, sorted by
// source name.
func DetailRows(docs []model.Document) [][]string {
	sorted := append([]model.Document(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SourceName < sorted[j].SourceName })

	rows := make([][]string, 0, len(sorted))
	for _, d := range sorted {
		copied := "No"
		if d.Copied {
			copied = "Yes"
		}
		rows = append(rows, []string{
			d.SourceName, string(d.Type), d.StatusCode, d.StatusReason,
			d.NumberStart, d.NumberEnd, d.Series, d.Model, d.IssuedAt,
			d.AccessKey, copied, strings.Join(d.Errors, "; "),
		})
	}
	return rows
}

// sequenceGroups buckets authorized documents with numeric numbers by
// (model, series), returning the groups plus their keys in sorted order.
func sequenceGroups(docs []model.Document) (map[groupKey][]int, []groupKey) {
	groups := make(map[groupKey][]int)
	for i := range docs {
		if docs[i].Type != model.DocTypeAuthorized {
			continue
		}
		n, ok := docs[i].SequenceNumber()
		if !ok {
			continue
		}
		key := groupKey{model: docs[i].Model, series: docs[i].Series}
		groups[key] = append(groups[key], n)
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].model != keys[j].model {
			return keys[i].model < keys[j].model
		}
		return keys[i].series < keys[j].series
	})
	return groups, keys
}

// unknownDocs returns documents that stayed fully unidentified, sorted by
// source name.
func unknownDocs(docs []model.Document) []model.Document {
	var out []model.Document
	for i := range docs {
		if docs[i].Type == model.DocTypeUnknown {
			out = append(out, docs[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceName < out[j].SourceName })
	return out
}

// copiedDocs returns the copied documents ordered by (model, series, number).
func copiedDocs(docs []model.Document) []model.Document {
	var out []model.Document
	for i := range docs {
		if docs[i].Copied {
			out = append(out, docs[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Model != b.Model {
			return a.Model < b.Model
		}
		if a.Series != b.Series {
			return a.Series < b.Series
		}
		an, _ := a.SequenceNumber()
		bn, _ := b.SequenceNumber()
		return an < bn
	})
	return out
}

// formatIssueDate renders an ISO timestamp as dd/mm/yyyy. Values without a
// time component come back as N/A; unparseable timestamps degrade to their
// date part.
func formatIssueDate(issuedAt string) string {
	if !strings.Contains(issuedAt, "T") {
		return "N/A"
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, issuedAt); err == nil {
			return ts.Format("02/01/2006")
		}
	}
	return strings.SplitN(issuedAt, "T", 2)[0]
}

// center pads s with spaces on both sides to the given rune width, the extra
// space going right when the split is uneven.
func center(s string, width int) string {
	gap := width - utf8.RuneCountInString(s)
	if gap <= 0 {
		return s
	}
	left := gap / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", gap-left)
}
