package normalize

import (
	"strings"
	"testing"

	"github.com/Clean1ines/iXe/internal/models"
)

func TestNormalizePlainBlock(t *testing.T) {
	block := models.Block{
		Index: 0,
		ContentHTML: `<div class="qblock">
			<p>Вычислите значение выражения.</p>
			<p>Запишите ответ.</p>
		</div>`,
	}

	res, err := NewNormalizer(0).Normalize(block)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := "Вычислите значение выражения.\nЗапишите ответ."
	if res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if res.MathText != "" {
		t.Errorf("MathText = %q, want empty for mathless block", res.MathText)
	}
	if res.Degraded {
		t.Error("Degraded set for block without math")
	}
}

func TestNormalizeMathBlock(t *testing.T) {
	block := models.Block{
		Index: 1,
		ContentHTML: `<div class="qblock">Решите уравнение ` +
			`<math><mfrac><mi>x</mi><mn>2</mn></mfrac><mo>=</mo><mn>4</mn></math></div>`,
	}

	res, err := NewNormalizer(0).Normalize(block)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !strings.Contains(res.MathText, `\frac{x}{2}`) {
		t.Errorf("MathText = %q, want LaTeX fraction", res.MathText)
	}
	if !strings.Contains(res.MathText, "$") {
		t.Errorf("MathText = %q, want delimited formula", res.MathText)
	}
	if strings.Contains(res.Text, `\frac`) {
		t.Errorf("Text = %q, must not contain LaTeX", res.Text)
	}
	if !strings.Contains(res.Text, "Решите уравнение") {
		t.Errorf("Text = %q, lost surrounding prose", res.Text)
	}
	if res.Degraded {
		t.Error("Degraded set for convertible math")
	}
}

func TestNormalizeStripsInteractiveElements(t *testing.T) {
	block := models.Block{
		ContentHTML: `<div class="qblock">Текст задачи` +
			`<input type="text" name="answer"/>` +
			`<button onclick="checkButtonClick('f1')">Проверить</button>` +
			`<script>var x = 1;</script></div>`,
	}

	res, err := NewNormalizer(0).Normalize(block)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if strings.Contains(res.Text, "Проверить") || strings.Contains(res.Text, "var x") {
		t.Errorf("Text = %q, interactive content leaked", res.Text)
	}
	for _, tag := range []string{"<input", "<button", "<script"} {
		if strings.Contains(res.HTML, tag) {
			t.Errorf("HTML contains %s: %q", tag, res.HTML)
		}
	}
}

func TestNormalizeCollapsesRenderedDuplicates(t *testing.T) {
	// MathJax leaves the rendered copy next to the source, producing
	// adjacent duplicate text once both flatten.
	block := models.Block{
		ContentHTML: `<div class="qblock"><p>точка (25;0) (25;0) на оси</p></div>`,
	}

	res, err := NewNormalizer(0).Normalize(block)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if strings.Count(res.Text, "(25;0)") != 1 {
		t.Errorf("Text = %q, duplicate fragment survived", res.Text)
	}
}

func TestNormalizeMalformedMathDegrades(t *testing.T) {
	block := models.Block{
		ContentHTML: `<div class="qblock">До <math></math> после</div>`,
	}

	res, err := NewNormalizer(0).Normalize(block)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !res.Degraded {
		t.Error("Degraded not set for inconvertible math")
	}
	if !strings.Contains(res.Text, "До") || !strings.Contains(res.Text, "после") {
		t.Errorf("Text = %q, surrounding prose lost", res.Text)
	}
}
