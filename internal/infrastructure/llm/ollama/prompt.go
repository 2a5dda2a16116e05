package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

const defaultInstructions = `Você é o assistente de documentos da empresa do usuário.
Responda usando SOMENTE os trechos numerados do contexto.
Não invente informação. Responda no idioma da pergunta.`

// answerContract is appended to any instructions; parseGeneratedAnswer depends on it.
const answerContract = `Cite cada trecho usado com o seu número entre colchetes, por exemplo [1] ou [2].
Se a resposta não estiver nos trechos, diga explicitamente que não encontrou a informação e use has_answer=false.
Return a strict JSON object with keys: answer (string), citations (array of fragment numbers), has_answer (boolean).`

func answerSystemPrompt(instructions string) string {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		instructions = defaultInstructions
	}
	return instructions + "\n" + answerContract
}

const emptyContext = "Não há documentos relevantes."

const abstentionText = "Não encontrei essa informação nos documentos."

func buildAnswerPrompt(question string, history []domain.ConversationTurn, fragments []domain.RankedCandidate) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("HISTÓRICO:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(turn.Role), turn.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("CONTEXTO:\n")
	if len(fragments) == 0 {
		b.WriteString(emptyContext)
		b.WriteString("\n")
	}
	for idx, f := range fragments {
		fmt.Fprintf(&b, "[%d] arquivo=%s", idx+1, f.Filename)
		if f.SectionTitle != "" {
			fmt.Fprintf(&b, " seção=%q", f.SectionTitle)
		}
		if f.PageNumber > 0 {
			fmt.Fprintf(&b, " página=%d", f.PageNumber)
		}
		b.WriteString("\n")
		b.WriteString(f.Text)
		b.WriteString("\n\n")
	}

	b.WriteString("PERGUNTA:\n")
	b.WriteString(question)
	return b.String()
}
