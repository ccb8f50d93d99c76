package swarm

import (
	"fmt"
	"strings"
)

func (m *Method) initdb(dim int) error {
	if m.DB == nil {
		return nil
	}

	for _, s := range []string{
		"CREATE TABLE IF NOT EXISTS " + TblParticles + " (particle INTEGER, iter INTEGER, val REAL" + xdbsql(dim, "define") + xdbsql(dim, "vdefine") + ");",
		"CREATE TABLE IF NOT EXISTS " + TblParticlesBest + " (particle INTEGER, iter INTEGER, best REAL" + xdbsql(dim, "define") + ");",
		"CREATE TABLE IF NOT EXISTS " + TblBest + " (iter INTEGER, val REAL" + xdbsql(dim, "define") + ");",
	} {
		if _, err := m.DB.Exec(s); err != nil {
			return fmt.Errorf("swarm: init trace tables: %w", err)
		}
	}
	return nil
}

func (m *Method) updateDb(iter int) error {
	if m.DB == nil {
		return nil
	}

	dim := len(m.low)
	tx, err := m.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s1 := "INSERT INTO " + TblParticles + " (particle,iter,val" + xdbsql(dim, "x") + xdbsql(dim, "v") + ") VALUES (?,?,?" + xdbsql(dim, "?") + xdbsql(dim, "?") + ");"
	s2 := "INSERT INTO " + TblParticlesBest + " (particle,iter,best" + xdbsql(dim, "x") + ") VALUES (?,?,?" + xdbsql(dim, "?") + ");"
	for _, p := range m.Pop {
		args := append([]any{p.Id, iter, p.Val}, pos2iface(p.Pos())...)
		args = append(args, pos2iface(p.Vel)...)
		if _, err := tx.Exec(s1, args...); err != nil {
			return fmt.Errorf("swarm: record particle %v: %w", p.Id, err)
		}

		args = append([]any{p.Id, iter, p.Best.Val}, pos2iface(p.Best.Pos())...)
		if _, err := tx.Exec(s2, args...); err != nil {
			return fmt.Errorf("swarm: record best of particle %v: %w", p.Id, err)
		}
	}

	s := "INSERT INTO " + TblBest + " (iter,val" + xdbsql(dim, "x") + ") VALUES (?,?" + xdbsql(dim, "?") + ");"
	args := append([]any{iter, m.best.Val}, pos2iface(m.best.Pos())...)
	if _, err := tx.Exec(s, args...); err != nil {
		return fmt.Errorf("swarm: record swarm best: %w", err)
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
		case "vdefine":
			fmt.Fprintf(&b, ",v%v REAL", i)
		case "x":
			fmt.Fprintf(&b, ",x%v", i)
		case "v":
			fmt.Fprintf(&b, ",v%v", i)
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
