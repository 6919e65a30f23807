package planner

import (
	"fmt"
	"strings"

	"github.com/ruslano69/sqlassist/pkg/session"
)

// Example - успешная пара вопрос/запрос для few-shot подсказки
type Example struct {
	Question string
	Source   string
	Query    string
}

const instructions = `Instructions:
1. Analyze the question to determine which source contains the needed data
2. Generate a single read-only SQL query (SELECT or WITH) for that source
3. Data from different sources cannot be joined in one query
4. Use only tables and columns listed in the schema
5. Return the query in this format: DATABASE:<source>|QUERY:<sql>;
6. Do not add explanations, markdown or extra lines`

const builtinExamples = `Examples:
Question: How many employees?
DATABASE:db1|QUERY:SELECT COUNT(*) FROM employees;

Question: List all departments
DATABASE:db1|QUERY:SELECT name FROM departments;

Question: What is the average salary?
DATABASE:db2|QUERY:SELECT AVG(amount) FROM salaries;`

// historyTurns - сколько последних обменов попадает в подсказку
const historyTurns = 3

// BuildPrompt renders the planning prompt.
func BuildPrompt(schemaText, question string, history []session.Turn, examples []Example) string {
	var b strings.Builder

	b.WriteString("You are a SQL expert. Given the database schema and a user question, generate the appropriate SQL query.\n\n")
	b.WriteString(strings.TrimRight(schemaText, "\n"))
	b.WriteString("\n\n")

	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		recent := session.Session{History: history}.Recent(historyTurns)
		for _, turn := range recent {
			fmt.Fprintf(&b, "User: %s\n", turn.Question)
			if turn.Query != "" {
				fmt.Fprintf(&b, "Query: DATABASE:%s|QUERY:%s\n", turn.Source, turn.Query)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User Question: %s\n\n", question)
	b.WriteString(instructions)
	b.WriteString("\n\n")
	b.WriteString(builtinExamples)
	b.WriteString("\n")

	if len(examples) > 0 {
		b.WriteString("\nPreviously successful queries:\n")
		for _, ex := range examples {
			fmt.Fprintf(&b, "Question: %s\nDATABASE:%s|QUERY:%s\n\n", ex.Question, ex.Source, ex.Query)
		}
	}

	b.WriteString("\nSQL Query:")
	return b.String()
}
