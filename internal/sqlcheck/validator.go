package sqlcheck

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datapolicy/policyscan/internal/domain/schema"
)

// Limits bound the complexity of accepted queries
type Limits struct {
	MaxTokens int
	MaxDepth  int
	MaxJoins  int
	RowLimit  int
}

// DefaultLimits are the bounds used when none are configured
var DefaultLimits = Limits{
	MaxTokens: 400,
	MaxDepth:  8,
	MaxJoins:  8,
	RowLimit:  50,
}

// RejectError explains why a query was refused. The reason is safe to
// surface to users and to store on the rule outcome.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return "query rejected: " + e.Reason
}

func reject(format string, args ...any) error {
	return &RejectError{Reason: fmt.Sprintf(format, args...)}
}

// statement verbs that must never appear anywhere in a query
var forbiddenWords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"ALTER": true, "CREATE": true, "TRUNCATE": true, "GRANT": true,
	"REVOKE": true, "EXECUTE": true, "CALL": true, "COPY": true,
	"MERGE": true, "VACUUM": true, "REINDEX": true, "CLUSTER": true,
	"SET": true, "RESET": true, "DO": true, "PREPARE": true,
	"DEALLOCATE": true, "LISTEN": true, "NOTIFY": true, "LOCK": true,
	"COMMENT": true, "REFRESH": true, "INTO": true, "RETURNING": true,
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true, "SAVEPOINT": true,
}

// functions with side effects or filesystem/network reach
var forbiddenFunctions = map[string]bool{
	"PG_SLEEP": true, "PG_READ_FILE": true, "PG_READ_BINARY_FILE": true,
	"PG_LS_DIR": true, "PG_TERMINATE_BACKEND": true, "PG_CANCEL_BACKEND": true,
	"PG_RELOAD_CONF": true, "DBLINK": true, "DBLINK_CONNECT": true,
	"DBLINK_EXEC": true, "LO_IMPORT": true, "LO_EXPORT": true,
	"PG_ADVISORY_LOCK": true, "SETVAL": true, "NEXTVAL": true,
	"PG_NOTIFY": true, "QUERY_TO_XML": true, "SET_CONFIG": true,
}

// words that are structural SQL and never checked as column names
var sqlWords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true,
	"NOT": true, "IN": true, "IS": true, "NULL": true, "LIKE": true,
	"ILIKE": true, "SIMILAR": true, "BETWEEN": true, "CASE": true,
	"WHEN": true, "THEN": true, "ELSE": true, "END": true, "AS": true,
	"ON": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"FULL": true, "OUTER": true, "CROSS": true, "GROUP": true, "BY": true,
	"ORDER": true, "HAVING": true, "LIMIT": true, "OFFSET": true,
	"ASC": true, "DESC": true, "DISTINCT": true, "ALL": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "EXISTS": true,
	"ANY": true, "SOME": true, "TRUE": true, "FALSE": true,
	"INTERVAL": true, "CAST": true, "NULLS": true, "FIRST": true,
	"LAST": true, "USING": true, "NATURAL": true, "ESCAPE": true,
	"CURRENT_DATE": true, "CURRENT_TIMESTAMP": true, "CURRENT_TIME": true,
	"LOCALTIMESTAMP": true, "LOCALTIME": true, "COLLATE": true,
	"OVER": true, "PARTITION": true, "ROWS": true, "RANGE": true,
	"PRECEDING": true, "FOLLOWING": true, "UNBOUNDED": true,
	"CURRENT": true, "ROW": true, "FILTER": true, "WITHIN": true,
	// common type names appearing after CAST(... AS <type>) or ::<type>
	"INT": true, "INTEGER": true, "BIGINT": true, "SMALLINT": true,
	"NUMERIC": true, "DECIMAL": true, "REAL": true, "FLOAT": true,
	"TEXT": true, "VARCHAR": true, "CHAR": true, "BOOLEAN": true,
	"DATE": true, "TIME": true, "TIMESTAMP": true, "TIMESTAMPTZ": true,
	"UUID": true, "JSON": true, "JSONB": true, "ZONE": true,
	"YEAR": true, "MONTH": true, "WEEK": true, "DAY": true,
	"HOUR": true, "MINUTE": true, "SECOND": true,
}

// Result is a validated, sanitized query ready for execution
type Result struct {
	// SQL is the sanitized statement with the row limit enforced
	SQL string
	// Tables are the snapshot tables the query reads, as referenced
	Tables []string
}

// Validator checks translator output against the target schema before
// anything gets near the target database. It accepts exactly one
// read-only SELECT over known tables and columns, and rewrites the
// statement so the row limit always holds.
type Validator struct {
	snapshot *schema.Snapshot
	limits   Limits
}

// New creates a Validator bound to a schema snapshot
func New(snapshot *schema.Snapshot, limits Limits) *Validator {
	if limits.MaxTokens <= 0 {
		limits.MaxTokens = DefaultLimits.MaxTokens
	}
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultLimits.MaxDepth
	}
	if limits.MaxJoins <= 0 {
		limits.MaxJoins = DefaultLimits.MaxJoins
	}
	if limits.RowLimit <= 0 {
		limits.RowLimit = DefaultLimits.RowLimit
	}
	return &Validator{snapshot: snapshot, limits: limits}
}

// Validate checks the statement and returns the sanitized form. Any
// returned error is a *RejectError.
func (v *Validator) Validate(query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, reject("empty statement")
	}

	tokens, err := lex(query)
	if err != nil {
		return nil, &RejectError{Reason: err.Error()}
	}
	if len(tokens) == 0 {
		return nil, reject("empty statement")
	}
	if len(tokens) > v.limits.MaxTokens {
		return nil, reject("statement too complex: %d tokens (max %d)", len(tokens), v.limits.MaxTokens)
	}

	// a single trailing semicolon is tolerated, anything after it is not
	if tokens[len(tokens)-1].Kind == TokenSemicolon {
		tokens = tokens[:len(tokens)-1]
	}
	for _, t := range tokens {
		if t.Kind == TokenSemicolon {
			return nil, reject("multiple statements are not allowed")
		}
	}
	if len(tokens) == 0 {
		return nil, reject("empty statement")
	}

	first := tokens[0]
	if first.Kind != TokenWord || first.Text != "SELECT" {
		if first.Kind == TokenWord && first.Text == "WITH" {
			return nil, reject("common table expressions are not allowed")
		}
		return nil, reject("only SELECT statements are allowed")
	}

	if err := v.checkWords(tokens); err != nil {
		return nil, err
	}
	if err := v.checkDepth(tokens); err != nil {
		return nil, err
	}

	tables, aliases, err := v.checkTables(tokens)
	if err != nil {
		return nil, err
	}
	if err := v.checkColumns(tokens, tables, aliases); err != nil {
		return nil, err
	}

	sanitized, err := v.enforceLimit(query, tokens)
	if err != nil {
		return nil, err
	}

	return &Result{SQL: sanitized, Tables: tables}, nil
}

func (v *Validator) checkWords(tokens []Token) error {
	joins := 0
	for i, t := range tokens {
		if t.Kind != TokenWord {
			continue
		}
		if forbiddenWords[t.Text] {
			return reject("keyword %s is not allowed", t.Text)
		}
		if t.Text == "JOIN" {
			joins++
			if joins > v.limits.MaxJoins {
				return reject("too many joins (max %d)", v.limits.MaxJoins)
			}
		}
		// FOR UPDATE / FOR SHARE take row locks on the target
		if t.Text == "FOR" && i+1 < len(tokens) && tokens[i+1].Kind == TokenWord {
			next := tokens[i+1].Text
			if next == "UPDATE" || next == "SHARE" || next == "NO" || next == "KEY" {
				return reject("locking clauses are not allowed")
			}
		}
		if i+1 < len(tokens) && tokens[i+1].Kind == TokenLParen && forbiddenFunctions[t.Text] {
			return reject("function %s is not allowed", strings.ToLower(t.Text))
		}
	}
	return nil
}

func (v *Validator) checkDepth(tokens []Token) error {
	depth := 0
	for _, t := range tokens {
		switch t.Kind {
		case TokenLParen:
			depth++
			if depth > v.limits.MaxDepth {
				return reject("statement too deeply nested (max depth %d)", v.limits.MaxDepth)
			}
		case TokenRParen:
			depth--
			if depth < 0 {
				return reject("unbalanced parentheses")
			}
		}
	}
	if depth != 0 {
		return reject("unbalanced parentheses")
	}
	return nil
}

// checkTables finds every table referenced after FROM or JOIN,
// verifies it exists in the snapshot, and records table aliases
func (v *Validator) checkTables(tokens []Token) ([]string, map[string]string, error) {
	var tables []string
	seen := map[string]bool{}
	aliases := map[string]string{}

	// parens opened by a function call, so the FROM inside
	// EXTRACT(YEAR FROM x) is not mistaken for a table reference
	funcDepth := 0
	var funcStack []bool

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch t.Kind {
		case TokenLParen:
			isCall := false
			if i > 0 && tokens[i-1].Kind == TokenWord {
				prev := tokens[i-1].Text
				isCall = !sqlWords[prev] || prev == "CAST" || prev == "EXTRACT"
			}
			funcStack = append(funcStack, isCall)
			if isCall {
				funcDepth++
			}
			continue
		case TokenRParen:
			if n := len(funcStack); n > 0 {
				if funcStack[n-1] {
					funcDepth--
				}
				funcStack = funcStack[:n-1]
			}
			continue
		}
		if t.Kind != TokenWord || (t.Text != "FROM" && t.Text != "JOIN") || funcDepth > 0 {
			continue
		}
		j := i + 1
		if j >= len(tokens) {
			return nil, nil, reject("dangling %s", t.Text)
		}
		// FROM (subquery) AS alias: the subquery body is validated by
		// the same token walk, only the alias needs recording
		if tokens[j].Kind == TokenLParen {
			j = skipParens(tokens, j)
			if alias, ok := aliasAt(tokens, j); ok {
				aliases[alias] = ""
			}
			continue
		}
		name, ok := identText(tokens[j])
		if !ok {
			return nil, nil, reject("expected table name after %s", t.Text)
		}
		// schema-qualified names are not allowed, the snapshot only
		// covers the search path
		if j+1 < len(tokens) && tokens[j+1].Kind == TokenOperator && tokens[j+1].Text == "." {
			return nil, nil, reject("schema-qualified table %s is not allowed", name)
		}
		if !v.snapshot.HasTable(name) {
			return nil, nil, reject("unknown table %q", name)
		}
		canonical := strings.ToLower(name)
		if !seen[canonical] {
			seen[canonical] = true
			tables = append(tables, name)
		}
		if alias, ok := aliasAt(tokens, j+1); ok {
			aliases[alias] = canonical
		}
	}

	if len(tables) == 0 {
		return nil, nil, reject("statement reads no table")
	}
	return tables, aliases, nil
}

// checkColumns verifies qualified column references against the
// referenced tables. Bare identifiers must be a column of one of the
// referenced tables or an alias introduced with AS.
func (v *Validator) checkColumns(tokens []Token, tables []string, tableAliases map[string]string) error {
	defined := map[string]bool{}
	for i, t := range tokens {
		if t.Kind == TokenWord && t.Text == "AS" && i+1 < len(tokens) {
			if name, ok := identText(tokens[i+1]); ok {
				defined[strings.ToLower(name)] = true
			}
		}
	}

	columnOf := func(name string) bool {
		for _, tbl := range tables {
			if v.snapshot.HasColumn(tbl, name) {
				return true
			}
		}
		return false
	}

	for i := 0; i < len(tokens); i++ {
		name, ok := identText(tokens[i])
		if !ok {
			continue
		}
		if tokens[i].Kind == TokenWord && sqlWords[tokens[i].Text] {
			continue
		}
		// function call
		if i+1 < len(tokens) && tokens[i+1].Kind == TokenLParen {
			continue
		}
		// qualifier.column
		if i+2 < len(tokens) && isDot(tokens[i+1]) {
			qual := strings.ToLower(name)
			if _, isAlias := tableAliases[qual]; !isAlias && !v.snapshot.HasTable(name) {
				return reject("unknown table or alias %q", name)
			}
			col, ok := identText(tokens[i+2])
			if !ok {
				if tokens[i+2].Kind == TokenOperator && tokens[i+2].Text == "*" {
					i += 2
					continue
				}
				return reject("expected column after %q.", name)
			}
			if tbl := tableAliases[strings.ToLower(name)]; tbl != "" {
				if !v.snapshot.HasColumn(tbl, col) {
					return reject("unknown column %q on table %q", col, tbl)
				}
			} else if v.snapshot.HasTable(name) {
				if !v.snapshot.HasColumn(name, col) {
					return reject("unknown column %q on table %q", col, name)
				}
			} else if !columnOf(col) {
				// subquery alias qualifier, best effort
				if !defined[strings.ToLower(col)] {
					return reject("unknown column %q", col)
				}
			}
			i += 2
			continue
		}
		// skip the alias position itself and table names
		if i > 0 && tokens[i-1].Kind == TokenWord && (tokens[i-1].Text == "AS" || tokens[i-1].Text == "FROM" || tokens[i-1].Text == "JOIN") {
			continue
		}
		// alias directly after a table name or subquery
		if _, isAlias := tableAliases[strings.ToLower(name)]; isAlias {
			continue
		}
		if columnOf(name) || defined[strings.ToLower(name)] {
			continue
		}
		return reject("unknown column %q", name)
	}
	return nil
}

// enforceLimit appends or clamps the LIMIT clause so no query returns
// more than the configured number of rows. Only a top-level LIMIT
// counts; one inside a subquery does not bound the outer result.
func (v *Validator) enforceLimit(query string, tokens []Token) (string, error) {
	query = strings.TrimRight(strings.TrimSpace(query), ";")
	query = strings.TrimSpace(query)

	depth := 0
	for i := 0; i < len(tokens); i++ {
		switch tokens[i].Kind {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
		}
		if depth != 0 || tokens[i].Kind != TokenWord || tokens[i].Text != "LIMIT" {
			continue
		}
		if i+1 >= len(tokens) || tokens[i+1].Kind != TokenNumber {
			return "", reject("malformed LIMIT clause")
		}
		num := tokens[i+1]
		val, err := strconv.Atoi(num.Text)
		if err != nil {
			return "", reject("malformed LIMIT clause")
		}
		if val <= v.limits.RowLimit {
			return query, nil
		}
		// clamp in place, token positions are rune offsets
		runes := []rune(query)
		end := num.Pos + len(num.Text)
		return string(runes[:num.Pos]) + strconv.Itoa(v.limits.RowLimit) + string(runes[end:]), nil
	}

	return fmt.Sprintf("%s LIMIT %d", query, v.limits.RowLimit), nil
}

func identText(t Token) (string, bool) {
	switch t.Kind {
	case TokenWord:
		if forbiddenWords[t.Text] || sqlWords[t.Text] {
			return "", false
		}
		return t.Text, true
	case TokenQuotedIdent:
		return t.Text, true
	}
	return "", false
}

func isDot(t Token) bool {
	return t.Kind == TokenOperator && t.Text == "."
}

func aliasAt(tokens []Token, i int) (string, bool) {
	if i < len(tokens) && tokens[i].Kind == TokenWord && tokens[i].Text == "AS" {
		i++
	}
	if i >= len(tokens) {
		return "", false
	}
	name, ok := identText(tokens[i])
	if !ok {
		return "", false
	}
	return strings.ToLower(name), true
}

func skipParens(tokens []Token, i int) int {
	depth := 0
	for ; i < len(tokens); i++ {
		switch tokens[i].Kind {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}
