package jobs

import (
	"context"
	"fmt"
	"math"
	"time"

	"pbietl/internal/export"
	"pbietl/internal/table"
	"pbietl/internal/transformer/builtin"
)

// trRealGroup identifies one pivoted row of TR_Real.
var trRealGroup = []string{"Fecha", "planta", "Division", "Reporte", "Concepto", "Unidad", "Orden", "Concepto2", "Concepto Capacidad"}

var trDatosOrder = []string{"Fecha", "planta", "Division", "Reporte", "Concepto", "Unidad", "Orden",
	"Concepto2", "Concepto Capacidad", "Real", "Meta", "Valor Tope",
	"Valor Planta", "Valor Transito", "Valor Capacidad", "Valor Capacidad 91"}

var catalogRenames = map[string]string{
	"CONCEPTO":           "Concepto",
	"UNIDAD":             "Unidad",
	"ORDEN":              "Orden",
	"CONCEPTO 2":         "Concepto2",
	"TIPO SALDO":         "TipoSaldo",
	"CONCEPTO CAPACIDAD": "Concepto Capacidad",
}

// trReal expands each extracted value with its catalog entry and pivots the
// balance types into columns.
func trReal(ctx context.Context, env *Env) error {
	datos, err := env.requireIntermediate(ctx, FileExtDatos)
	if err != nil {
		return err
	}
	datos = datos.Rename(map[string]string{"SEGMENTO": "Division", "Concepto Reporte": "Concepto_Reporte"})
	if err := requireColumns(datos, FileExtDatos, "Fecha", "planta", "Reporte", "Concepto_Reporte", "Valor"); err != nil {
		return err
	}
	datos = datos.Ensure(nil, "Division").
		Map("Valor", floatOrZero("Valor")).
		Map("Fecha", dateCell("Fecha"))

	cat, err := env.requireIntermediate(ctx, FileConceptosReporte)
	if err != nil {
		return err
	}
	if err := requireColumns(cat, FileConceptosReporte, "CONCEPTO REPORTE", "SECCION", "TIPO SALDO"); err != nil {
		return err
	}

	j, err := innerJoin(datos, cat, FileExtDatos, FileConceptosReporte, table.JoinSpec{
		LeftOn:  []string{"Concepto_Reporte", "Reporte"},
		RightOn: []string{"CONCEPTO REPORTE", "SECCION"},
		KeyFunc: env.Rules.Canonicalizer().Key,
	})
	if err != nil {
		return err
	}
	j = j.Rename(catalogRenames).
		Map("TipoSaldo", upperCell("TipoSaldo")).
		Map("Orden", intCell("Orden"))

	balances := env.Rules.BalanceMap()
	known := j.Filter(func(r table.Row) bool {
		_, ok := balances[builtin.SimpleKey(r.Get("TipoSaldo"))]
		return ok
	})
	if known.Empty() {
		return fmt.Errorf("%w: no row carries a known balance type (sample %q)", ErrEmptyResult, j.SampleKeys([]string{"TipoSaldo"}, 5, nil))
	}

	out, err := j.PivotSum(table.PivotSpec{
		Group:     trRealGroup,
		Label:     "TipoSaldo",
		Value:     "Valor",
		Columns:   balances,
		Order:     env.Rules.BalanceOrder(),
		LabelFunc: builtin.SimpleKey,
	})
	if err != nil {
		return err
	}
	order := env.Rules.BalanceOrder()
	out = out.Filter(func(r table.Row) bool {
		var sum float64
		for _, c := range order {
			f, _ := r.Get(c).(float64)
			sum += math.Abs(f)
		}
		return sum != 0
	})
	return env.write(ctx, "TR_Real", out, export.Target{Path: FileTRReal})
}

// trDatos restricts machine concepts, zeroes targets on non-working days and
// scales targets and capacity by worked days.
func trDatos(ctx context.Context, env *Env) error {
	src, err := env.requireIntermediate(ctx, FileTRReal)
	if err != nil {
		return err
	}
	src = src.Rename(map[string]string{"Concepto Reporte": "Concepto_Reporte", "SEGMENTO": "Division"})
	if err := requireColumns(src, FileTRReal, "Fecha", "planta", "Reporte", "Concepto", "Orden"); err != nil {
		return err
	}
	src = src.Ensure(nil, trDatosOrder...)
	src = mapAll(src, upperCell, "Concepto", "planta", "Concepto Capacidad")
	src = src.Map("Fecha", dateCell("Fecha")).Map("Orden", intCell("Orden"))
	src = mapAll(src, floatCell, env.Rules.BalanceOrder()...)

	machine := env.Rules.MachineOrder
	isMachine := func(r table.Row) bool {
		n, ok := r.Get("Orden").(int64)
		return ok && n == machine
	}

	maquinas := env.optionalIntermediate(ctx, FileConceptosMaquinas)
	machines := src.Filter(isMachine)
	if maquinas.Has("PLANTA", "CONCEPTO") {
		machines, err = machines.Join(maquinas.SelectPresent("PLANTA", "CONCEPTO"), table.JoinSpec{
			LeftOn:  []string{"planta", "Concepto"},
			RightOn: []string{"PLANTA", "CONCEPTO"},
			Kind:    table.Inner,
			KeyFunc: builtin.SimpleKey,
		})
		if err != nil {
			return err
		}
	} else {
		env.logger().Printf("[WARN] job=TR_Datos machine catalog unavailable, dropping %d machine rows", machines.Len())
		machines = table.New(src.Columns...)
	}
	machines, _ = machines.Select(src.Columns...)
	others := src.Filter(func(r table.Row) bool { return !isMachine(r) })
	t := table.Concat(machines, others)

	t = t.Map("Id_Semana", func(r table.Row) any {
		d, ok := r.Get("Fecha").(time.Time)
		if !ok {
			return nil
		}
		return int64(d.Weekday())
	})

	festivos := env.optionalIntermediate(ctx, FileDiasFestivos)
	if festivos.Has("Fecha", "id") {
		festivos, _ = festivos.Select("Fecha", "id")
		festivos = festivos.Map("Fecha", dateCell("Fecha")).Map("id", intCell("id"))
		festivos, _ = festivos.Distinct("Fecha")
		festivos = festivos.Rename(map[string]string{"id": "id_Festivo"})
		if t, err = t.Join(festivos, table.JoinSpec{LeftOn: []string{"Fecha"}, RightOn: []string{"Fecha"}, Kind: table.Left}); err != nil {
			return err
		}
	}
	t = t.Ensure(nil, "id_Festivo")

	flags := env.optionalIntermediate(ctx, FileConceptosProdFlag)
	if flags.Has("Column2", "Column6", "Column9") {
		flags, _ = flags.Select("Column2", "Column6", "Column9")
		flags, _ = flags.DistinctBy(builtin.SimpleKey, "Column2", "Column6")
		flags = flags.Rename(map[string]string{"Column9": "id_Conceptos_Prod"}).Map("id_Conceptos_Prod", intCell("id_Conceptos_Prod"))
		t, err = t.Join(flags, table.JoinSpec{
			LeftOn:  []string{"Concepto", "Reporte"},
			RightOn: []string{"Column2", "Column6"},
			Kind:    table.Left,
			KeyFunc: builtin.SimpleKey,
		})
		if err != nil {
			return err
		}
	}
	t = t.Ensure(nil, "id_Conceptos_Prod")

	canon := env.Rules.Canonicalizer()
	always := canon.Canonical(env.Rules.AlwaysApplicableReport)
	t = t.Map("Meta", func(r table.Row) any {
		nonWorking := r.Get("Id_Semana") == int64(0) || r.Get("id_Festivo") == int64(1)
		applies := canon.Key(r.Get("Reporte")) == always ||
			r.Get("id_Conceptos_Prod") == int64(1) ||
			isMachine(r)
		if nonWorking && applies {
			return float64(0)
		}
		return r.Get("Meta")
	})

	dias := env.optionalIntermediate(ctx, FileDiasLaborados)
	if dias.Has("date", "planta", "Conceptos_DiasLaborados", "Dias_Laborados") {
		dias, _ = dias.Select("date", "planta", "Conceptos_DiasLaborados", "Dias_Laborados")
		dias = dias.Map("date", dateCell("date")).
			Map("planta", upperCell("planta")).
			Map("Conceptos_DiasLaborados", upperCell("Conceptos_DiasLaborados")).
			Map("Dias_Laborados", floatCell("Dias_Laborados"))
		dias, _ = dias.Distinct("date", "planta", "Conceptos_DiasLaborados")
	} else {
		env.logger().Printf("[WARN] job=TR_Datos worked days unavailable, multipliers default to 1")
		dias = table.New("date", "planta", "Conceptos_DiasLaborados", "Dias_Laborados")
	}

	for _, m := range []struct{ on, factor, target string }{
		{on: "Concepto", factor: "Dias_Laborados_Concepto", target: "Meta"},
		{on: "Concepto Capacidad", factor: "Dias_Laborados_Capacidad", target: "Valor Capacidad"},
	} {
		right := dias.Rename(map[string]string{"Dias_Laborados": m.factor})
		t, err = t.Join(right, table.JoinSpec{
			LeftOn:  []string{"Fecha", "planta", m.on},
			RightOn: []string{"date", "planta", "Conceptos_DiasLaborados"},
			Kind:    table.Left,
		})
		if err != nil {
			return err
		}
		factor, target := m.factor, m.target
		t = t.Map(target, func(r table.Row) any {
			v, ok := builtin.ParseNumber(r.Get(target))
			if !ok {
				return nil
			}
			f, ok := r.Get(factor).(float64)
			if !ok {
				f = 1
			}
			return v * f
		})
	}

	out, err := t.Select(trDatosOrder...)
	if err != nil {
		return err
	}
	return env.write(ctx, "TR_Datos", out, export.Target{Path: FileTRDatos})
}
