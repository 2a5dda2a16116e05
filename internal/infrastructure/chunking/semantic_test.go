package chunking

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkEmptyInput(t *testing.T) {
	c := NewSemanticChunker(100, 10, 0)
	for _, text := range []string{"", "   ", "\n\n\t"} {
		got := c.Chunk(text)
		if got == nil || len(got) != 0 {
			t.Fatalf("Chunk(%q) = %#v, want empty non-nil slice", text, got)
		}
	}
}

func TestChunkDetectsTitleAndSubtitle(t *testing.T) {
	text := "Requisitos:\nO colaborador deve enviar o formulario completo.\n\n" +
		"POLITICA DE FERIAS\nAs ferias devem ser solicitadas com trinta dias de antecedencia.\n"
	c := NewSemanticChunker(500, 50, 0)

	got := c.Chunk(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments, got %d: %#v", len(got), got)
	}
	if got[0].SectionTitle != "Requisitos" {
		t.Fatalf("expected subtitle section, got %q", got[0].SectionTitle)
	}
	if got[1].SectionTitle != "POLITICA DE FERIAS" {
		t.Fatalf("expected title section, got %q", got[1].SectionTitle)
	}
	if !strings.HasPrefix(got[0].Text, "Requisitos:\n\n") {
		t.Fatalf("expected subtitle to open the first fragment, got %q", got[0].Text)
	}
	if !strings.HasPrefix(got[1].Text, "POLITICA DE FERIAS\n\nAs ferias") {
		t.Fatalf("expected title to open the section fragment, got %q", got[1].Text)
	}
	if got[0].ChunkIndex != 0 || got[1].ChunkIndex != 1 {
		t.Fatalf("unexpected chunk indexes: %d %d", got[0].ChunkIndex, got[1].ChunkIndex)
	}
}

func TestChunkKeepsEveryWord(t *testing.T) {
	text := "POLÍTICA DE FÉRIAS\nColaboradores podem tirar trinta dias por ano.\n\n" +
		"Observações:\nPedidos devem ser feitos com antecedência. O gestor aprova em cinco dias úteis.\n\n" +
		"<<<PAGE_2>>>\nREEMBOLSO\n\nDESPESAS DE VIAGEM\nNotas fiscais são obrigatórias para qualquer valor acima de cem reais. " +
		strings.Repeat("Cada despesa precisa de justificativa escrita. ", 6)

	for _, sizes := range [][3]int{{500, 50, 0}, {80, 20, 0}, {40, 0, 0}} {
		got := NewSemanticChunker(sizes[0], sizes[1], sizes[2]).Chunk(text)
		seen := map[string]bool{}
		for _, f := range got {
			for _, w := range strings.Fields(f.Text) {
				seen[w] = true
			}
		}
		for _, w := range strings.Fields(strings.ReplaceAll(text, "<<<PAGE_2>>>", "")) {
			if !seen[w] {
				t.Fatalf("sizes %v: word %q missing from every fragment", sizes, w)
			}
		}
	}
}

func TestChunkSeedsOverlapTail(t *testing.T) {
	text := "alpha beta gamma delta epsilon\n\nzeta eta theta iota kappa lambda"
	c := NewSemanticChunker(50, 10, 0)

	got := c.Chunk(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(got))
	}
	if got[0].Text != "alpha beta gamma delta epsilon" {
		t.Fatalf("unexpected first fragment: %q", got[0].Text)
	}
	if got[1].Text != "epsilon\n\nzeta eta theta iota kappa lambda" {
		t.Fatalf("expected overlap tail at word boundary, got %q", got[1].Text)
	}
}

func TestChunkRespectsSizeBound(t *testing.T) {
	var b strings.Builder
	for p := 0; p < 8; p++ {
		for s := 0; s < 6; s++ {
			fmt.Fprintf(&b, "Sentence %d of paragraph %d carries a handful of words. ", s, p)
		}
		b.WriteString("\n\n")
	}
	b.WriteString(strings.Repeat("x", 400))

	const maxSize, overlap = 120, 30
	c := NewSemanticChunker(maxSize, overlap, 10)
	got := c.Chunk(b.String())
	if len(got) < 5 {
		t.Fatalf("expected several fragments, got %d", len(got))
	}
	for _, f := range got {
		if n := utf8.RuneCountInString(f.Text); n > maxSize+overlap {
			t.Fatalf("fragment %d has %d runes, bound is %d", f.ChunkIndex, n, maxSize+overlap)
		}
		if f.CharCount != utf8.RuneCountInString(f.Text) {
			t.Fatalf("char count mismatch for fragment %d", f.ChunkIndex)
		}
		if f.WordCount != len(strings.Fields(f.Text)) {
			t.Fatalf("word count mismatch for fragment %d", f.ChunkIndex)
		}
	}
}

func TestChunkDropsShortTrailingChunk(t *testing.T) {
	text := strings.Repeat("word ", 20) + "\n\nshort tail"
	c := NewSemanticChunker(110, 0, 20)

	got := c.Chunk(text)
	if len(got) != 1 {
		t.Fatalf("expected trailing short chunk to be dropped, got %d fragments", len(got))
	}
	if strings.Contains(got[0].Text, "short tail") {
		t.Fatalf("unexpected tail in %q", got[0].Text)
	}
}

func TestChunkHashesAreDeterministic(t *testing.T) {
	text := "Primeiro paragrafo com algum texto.\n\nSegundo paragrafo com outro texto."
	c := NewSemanticChunker(40, 5, 0)

	first := c.Chunk(text)
	second := c.Chunk(text)
	if len(first) != len(second) || len(first) == 0 {
		t.Fatalf("unexpected lengths %d and %d", len(first), len(second))
	}
	seen := map[string]bool{}
	for i := range first {
		if first[i].ContentHash != second[i].ContentHash {
			t.Fatalf("hash %d differs between runs", i)
		}
		if len(first[i].ContentHash) != 64 {
			t.Fatalf("expected hex sha256, got %q", first[i].ContentHash)
		}
		if seen[first[i].ContentHash] {
			t.Fatalf("distinct fragments share a hash")
		}
		seen[first[i].ContentHash] = true
	}
}

func TestChunkMapsPageMarkers(t *testing.T) {
	text := "<<<PAGE_1>>>\nFirst page paragraph with enough words to stand alone here.\n\n" +
		"<<<PAGE_2>>>\nSecond page paragraph that also has plenty of words to chunk."
	c := NewSemanticChunker(70, 0, 0)

	got := c.Chunk(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 fragments, got %d: %#v", len(got), got)
	}
	for _, f := range got {
		if strings.Contains(f.Text, "<<<PAGE") {
			t.Fatalf("page marker leaked into %q", f.Text)
		}
	}
	if got[0].PageNumber != 1 || got[1].PageNumber != 2 {
		t.Fatalf("unexpected pages: %d, %d", got[0].PageNumber, got[1].PageNumber)
	}
}

func TestChunkWithoutMarkersHasNoPage(t *testing.T) {
	got := NewSemanticChunker(100, 0, 0).Chunk("plain text without any markers")
	if len(got) != 1 || got[0].PageNumber != 0 {
		t.Fatalf("unexpected fragments: %#v", got)
	}
}

func TestClassifyLine(t *testing.T) {
	cases := []struct {
		line     string
		hasTitle bool
		want     lineKind
	}{
		{line: "INTRODUCAO", want: lineTitle},
		{line: "FAQ", want: lineBody},
		{line: "Observacoes:", want: lineSubtitle},
		{line: "Observacoes:", hasTitle: true, want: lineBody},
		{line: "Texto comum.", want: lineBody},
		{line: "1234", want: lineBody},
	}
	for _, tc := range cases {
		if got := classifyLine(tc.line, tc.hasTitle); got != tc.want {
			t.Fatalf("classifyLine(%q, %v) = %v, want %v", tc.line, tc.hasTitle, got, tc.want)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Um. Dois!  Tres? Quatro 3.5 fim")
	want := []string{"Um.", "Dois!", "Tres?", "Quatro 3.5 fim"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("splitSentences = %q, want %q", got, want)
	}
}
