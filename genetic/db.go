package genetic

import (
	"fmt"
	"strings"
)

func (m *Method) initdb(dim int) error {
	if m.DB == nil {
		return nil
	}

	s := "CREATE TABLE IF NOT EXISTS " + TblPopulation + " (gen INTEGER, member INTEGER, val REAL" + xdbsql(dim, "define") + ");"
	if _, err := m.DB.Exec(s); err != nil {
		return fmt.Errorf("genetic: create %v: %w", TblPopulation, err)
	}
	s = "CREATE TABLE IF NOT EXISTS " + TblBest + " (gen INTEGER, val REAL" + xdbsql(dim, "define") + ");"
	if _, err := m.DB.Exec(s); err != nil {
		return fmt.Errorf("genetic: create %v: %w", TblBest, err)
	}
	return nil
}

func (m *Method) updateDb(gen int) error {
	if m.DB == nil {
		return nil
	}

	dim := len(m.bounds.Lower)
	tx, err := m.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s := "INSERT INTO " + TblPopulation + " (gen,member,val" + xdbsql(dim, "x") + ") VALUES (?,?,?" + xdbsql(dim, "?") + ");"
	stmt, err := tx.Prepare(s)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, mem := range m.pop {
		args := append([]any{gen, i, mem.Val}, pos2iface(mem.Pos())...)
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("genetic: record generation %v: %w", gen, err)
		}
	}

	s = "INSERT INTO " + TblBest + " (gen,val" + xdbsql(dim, "x") + ") VALUES (?,?" + xdbsql(dim, "?") + ");"
	args := append([]any{gen, m.best.Val}, pos2iface(m.best.Pos())...)
	if _, err := tx.Exec(s, args...); err != nil {
		return fmt.Errorf("genetic: record best of generation %v: %w", gen, err)
	}
	return tx.Commit()
}

func xdbsql(dim int, op string) string {
	var b strings.Builder
	for i := 0; i < dim; i++ {
		switch op {
		case "?":
			b.WriteString(",?")
		case "define":
			fmt.Fprintf(&b, ",x%v REAL", i)
		case "x":
			fmt.Fprintf(&b, ",x%v", i)
		default:
			panic("invalid db op " + op)
		}
	}
	return b.String()
}

func pos2iface(pos []float64) []any {
	iface := make([]any, len(pos))
	for i, v := range pos {
		iface[i] = v
	}
	return iface
}
