package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pbietl/internal/catalog"
	"pbietl/internal/config"
	"pbietl/internal/export"
	"pbietl/internal/table"
	"pbietl/internal/transformer/builtin"
)

// Output files. Consumers read exactly these names.
const (
	FileExtDatos           = "Ext_Datos.csv"
	FileConceptoInventario = "ConceptoInventario.xlsx"
	FileConceptosReporte   = "ConceptosReporte.xlsx"
	FileConceptosMaquinas  = "ConceptosMaquinas.xlsx"
	FileConceptosProdFlag  = "ConceptosProdFlag.xlsx"
	FileDiasFestivos       = "DiasFestivos.xlsx"
	FileCapacidad          = "Cat_DiasLaborablesCapacidad.xlsx"
	FileDiasLaborables     = "Cat_DiasLaborables.xlsx"
	FileDiasLaborados      = "Ext_DiasLaborados.xlsx"
	FileAtencion           = "Ext_Atencion a clientes.xlsx"
	FileTRReal             = "TR_Real.xlsx"
	FileTRDatos            = "TR_Datos.xlsx"
)

// Columns of the report-concept catalog, in output order.
var catalogColumns = []string{"CONCEPTO", "UNIDAD", "SECCION", "ORDEN", "CONCEPTO 2", "CONCEPTO CAPACIDAD", "TIPO SALDO", "CONCEPTO REPORTE"}

// Customer-service API fields that must exist before derivation.
var atencionFields = []string{"cliente", "phone", "date", "order_sale", "attended_by", "attended_at",
	"category", "branch_office", "rate", "status", "content", "folio", "clasification"}

var atencionOrder = []string{"Fecha", "planta", "Cliente", "Teléfono", "Empleado", "Categoría",
	"Clasificación", "Comentario", "Calificación", "Orden de Venta", "Folio", "Status",
	"Fecha Inicio", "Fecha Atendido", "Hora de Inicio", "Hora de Fin",
	"Tiempo Atencion Minutos", "IndiceAtencionClientes"}

var diasColumns = []string{"CONCEPTO", "DIAS LABORABLES"}

func financialJobs() []*Job {
	jobs := []*Job{
		{Name: "Ext_data", Output: FileExtDatos, Run: extData},
		{Name: "ConceptosReporte", Output: FileConceptosReporte, DependsOn: []string{"ConceptoInventario"}, Run: conceptosReporte},
		{Name: "ConceptoInventario", Output: FileConceptoInventario, Run: conceptoInventario},
		{Name: "ConceptosMaquinas", Output: FileConceptosMaquinas, Run: conceptosMaquinas},
		{Name: "ConceptosProdFlag", Output: FileConceptosProdFlag, Run: conceptosProdFlag},
		{Name: "DiasFestivos", Output: FileDiasFestivos, Run: diasFestivos},
		{Name: "Cat_DiasLaborablesCapacidad", Output: FileCapacidad, Run: diasCapacidad},
		{Name: "Cat_DiasLaborables", Output: FileDiasLaborables, DependsOn: []string{"Cat_DiasLaborablesCapacidad"}, Run: diasLaborables},
		{Name: "Ext_DiasLaborados", Output: FileDiasLaborados, DependsOn: []string{"Cat_DiasLaborables"}, Run: extDiasLaborados},
		{Name: "Ext_AtencionClientes", Output: FileAtencion, Run: extAtencion},
		{Name: "TR_Real", Output: FileTRReal, DependsOn: []string{"Ext_data", "ConceptosReporte"}, Run: trReal},
		{Name: "TR_Datos", Output: FileTRDatos, DependsOn: []string{"TR_Real", "ConceptosMaquinas", "DiasFestivos", "ConceptosProdFlag", "Ext_DiasLaborados"}, Run: trDatos},
	}
	for _, j := range jobs {
		j.Segment = SegmentFinanciero
	}
	return jobs
}

// extData unpivots the nested report sections of the KPI API.
func extData(ctx context.Context, env *Env) error {
	raw, err := env.requireSource(ctx, config.SourceKPIAPI)
	if err != nil {
		return err
	}
	ren := map[string]string{}
	for _, c := range raw.Columns {
		if strings.HasPrefix(c, "GENERAL.") {
			ren[c] = strings.TrimPrefix(c, "GENERAL.")
		}
	}
	t := raw.Rename(ren)
	if err := requireColumns(t, config.SourceKPIAPI, "date", "planta"); err != nil {
		return err
	}
	t = t.Ensure(nil, "SEGMENTO")
	ids := []string{"date", "planta", "SEGMENTO"}

	var parts []*table.Table
	for _, sec := range env.Rules.ReportSections {
		prefix := sec + "."
		var cols []string
		for _, c := range t.Columns {
			if strings.HasPrefix(c, prefix) {
				cols = append(cols, c)
			}
		}
		if len(cols) == 0 {
			env.logger().Printf("[WARN] job=Ext_data section=%q has no columns", sec)
			continue
		}
		m, err := t.Melt(ids, cols, "Concepto_Reporte", "Valor", nil)
		if err != nil {
			return err
		}
		label := sec
		m = m.Map("Concepto_Reporte", func(r table.Row) any {
			return strings.TrimPrefix(r.String("Concepto_Reporte"), prefix)
		})
		m = m.Map("Reporte", func(table.Row) any { return label })
		parts = append(parts, m)
	}
	if len(parts) == 0 {
		return fmt.Errorf("%w: no report section columns in %s", ErrEmptyResult, config.SourceKPIAPI)
	}

	out := table.Concat(parts...).
		Filter(func(r table.Row) bool { return !env.Rules.IsExcludedPlant(r.Get("planta")) }).
		Rename(map[string]string{"date": "Fecha"})
	out = out.Map("Fecha", dateCell("Fecha")).Map("Valor", floatCell("Valor"))
	out, err = out.Select("Fecha", "planta", "SEGMENTO", "Reporte", "Concepto_Reporte", "Valor")
	if err != nil {
		return err
	}
	return env.write(ctx, "Ext_data", out, export.Target{Path: FileExtDatos})
}

// conceptoInventario writes the inventory rows appended to the report catalog.
func conceptoInventario(ctx context.Context, env *Env) error {
	t := table.New(catalogColumns...)
	for _, c := range env.Rules.InventoryConcepts {
		t.Append(
			builtin.StripCell(c.Concepto),
			builtin.StripCell(c.Unidad),
			builtin.StripCell(c.Seccion),
			c.Orden,
			builtin.StripCell(c.Concepto2),
			builtin.StripCell(c.ConceptoCapacidad),
			builtin.Simple(c.TipoSaldo),
			builtin.StripCell(c.ConceptoReporte),
		)
	}
	return env.write(ctx, "ConceptoInventario", t, export.Target{Path: FileConceptoInventario})
}

// conceptosReporte turns the wide concept catalog into one row per
// (concept, balance type) and appends the inventory rows.
func conceptosReporte(ctx context.Context, env *Env) error {
	raw, err := env.requireSource(ctx, config.SourceCatalogo)
	if err != nil {
		return err
	}
	label := builtin.Simple(env.Rules.HeaderLabel)
	hdr := -1
	for i, r := range raw.Rows {
		for _, v := range r {
			if builtin.SimpleKey(v) == label {
				hdr = i
				break
			}
		}
		if hdr >= 0 {
			break
		}
	}
	if hdr < 0 {
		return fmt.Errorf("%w: %s has no %q header row", ErrEmptySource, config.SourceCatalogo, label)
	}

	body := &table.Table{Columns: raw.Columns, Rows: raw.Rows[hdr:]}
	t := body.PromoteHeader(builtin.SimpleKey).
		Filter(func(r table.Row) bool { return builtin.SimpleKey(r.Get("CONCEPTO")) != label })
	if err := requireColumns(t, config.SourceCatalogo, "CONCEPTO", "SECCION"); err != nil {
		return err
	}

	ids := []string{"CONCEPTO", "UNIDAD", "SECCION", "ORDEN", "CONCEPTO 2", "CONCEPTO CAPACIDAD"}
	types := make([]string, len(env.Rules.CatalogBalanceTypes))
	for i, bt := range env.Rules.CatalogBalanceTypes {
		types[i] = builtin.Simple(bt)
	}
	t = t.Ensure(nil, append(append([]string(nil), ids...), types...)...)
	t, _ = t.Select(append(append([]string(nil), ids...), types...)...)
	t = mapAll(t, stripCell, t.Columns...).
		Filter(func(r table.Row) bool { return r.Get("CONCEPTO") != nil })
	t = t.Map("ORDEN", intCell("ORDEN"))

	long, err := t.Melt(ids, types, "TIPO SALDO", "CONCEPTO REPORTE", nil)
	if err != nil {
		return err
	}

	inv, err := env.requireIntermediate(ctx, FileConceptoInventario)
	if err != nil {
		return err
	}
	inv = mapAll(inv, stripCell, inv.Columns...)
	inv = inv.Map("ORDEN", intCell("ORDEN"))

	out := table.Concat(long, inv).
		Filter(func(r table.Row) bool { return !env.Rules.IsPlaceholder(r.Get("CONCEPTO REPORTE")) })
	out = out.Map("TIPO SALDO", upperCell("TIPO SALDO"))
	out = out.Ensure(nil, catalogColumns...)
	out, err = out.Select(catalogColumns...)
	if err != nil {
		return err
	}
	return env.write(ctx, "ConceptosReporte", out, export.Target{Path: FileConceptosReporte})
}

// legacyText strips a cell and blanks the literal missing markers left by
// earlier spreadsheet round trips.
func legacyText(col string) func(table.Row) any {
	return func(r table.Row) any {
		s := strings.TrimSpace(r.String(col))
		if s == "nan" || s == "None" {
			return ""
		}
		return s
	}
}

func conceptosMaquinas(ctx context.Context, env *Env) error {
	raw, err := env.requireSource(ctx, config.SourceMaquinas)
	if err != nil {
		return err
	}
	spec, err := env.spec(config.SourceMaquinas)
	if err != nil {
		return err
	}
	t := raw.PromoteHeader(builtin.SimpleKey)
	pos, err := spec.Positions("concepto", "real", "meta", "orden")
	if err != nil {
		return err
	}
	out, err := t.SelectPositions(pos, []string{"CONCEPTO", "REAL", "META", "ORDEN"})
	if err != nil {
		return fmt.Errorf("%s: %w", config.SourceMaquinas, err)
	}
	for _, opt := range [][2]string{{"unidad", "UNIDAD"}, {"planta", "PLANTA"}} {
		col, err := optionalColumn(t, spec.Columns, opt[0], opt[1])
		if err != nil {
			return fmt.Errorf("%s: %w", config.SourceMaquinas, err)
		}
		out = out.With(opt[1], func(i int, _ table.Row) any {
			if col == nil {
				return nil
			}
			return col[i]
		})
	}

	out = out.Filter(func(r table.Row) bool { return !builtin.IsBlank(r.Get("CONCEPTO")) })
	out = mapAll(out, legacyText, "CONCEPTO", "REAL", "META", "UNIDAD", "PLANTA")
	out = out.Map("ORDEN", func(r table.Row) any {
		d := builtin.DigitsOnly(r.String("ORDEN"))
		if n, ok := builtin.ParseInt(d); ok {
			return n
		}
		return nil
	})
	out, _ = out.Select("CONCEPTO", "REAL", "META", "UNIDAD", "ORDEN", "PLANTA")
	return env.write(ctx, "ConceptosMaquinas", out, export.Target{Path: FileConceptosMaquinas})
}

// optionalColumn returns the cells of a role configured by position, else of
// the header name, else nil.
func optionalColumn(t *table.Table, roles map[string]int, role, name string) ([]any, error) {
	if p, ok := roles[role]; ok {
		sel, err := t.SelectPositions([]int{p}, []string{name})
		if err != nil {
			return nil, err
		}
		return sel.Col(name)
	}
	if t.Has(name) {
		return t.Col(name)
	}
	return nil, nil
}

func conceptosProdFlag(ctx context.Context, env *Env) error {
	raw, err := env.requireSource(ctx, config.SourceProdFlag)
	if err != nil {
		return err
	}
	spec, err := env.spec(config.SourceProdFlag)
	if err != nil {
		return err
	}
	pos, err := spec.Positions("concepto", "reporte", "flag")
	if err != nil {
		return err
	}
	t, err := raw.SelectPositions(pos, []string{"Column2", "Column6", "Column9"})
	if err != nil {
		return fmt.Errorf("%s: %w", config.SourceProdFlag, err)
	}
	t = t.Filter(func(r table.Row) bool {
		f, ok := builtin.ParseNumber(r.Get("Column9"))
		return ok && f == 1
	})
	t = mapAll(t, stripCell, "Column2", "Column6")
	t = t.Map("Column9", intCell("Column9"))
	return env.write(ctx, "ConceptosProdFlag", t, export.Target{Path: FileConceptosProdFlag})
}

// findColumn returns the first column whose trimmed uppercase name is name.
func findColumn(t *table.Table, name string) string {
	for _, c := range t.Columns {
		if builtin.Simple(c) == name {
			return c
		}
	}
	return ""
}

// diasFestivos normalizes the holiday catalog to one row per date.
func diasFestivos(ctx context.Context, env *Env) error {
	raw, err := env.requireSource(ctx, config.SourceFestivos)
	if err != nil {
		return err
	}
	fecha := findColumn(raw, "FECHA")
	if fecha == "" {
		return requireColumns(raw, config.SourceFestivos, "Fecha")
	}
	fi, ii := raw.Index(fecha), raw.Index(findColumn(raw, "ID"))

	out := table.New("Fecha", "id")
	dropped := 0
	for _, r := range raw.Rows {
		d, ok := builtin.ParseDate(r[fi])
		if !ok {
			dropped++
			continue
		}
		id := int64(1)
		if ii >= 0 {
			if n, ok := builtin.ParseInt(r[ii]); ok {
				id = n
			}
		}
		out.Append(builtin.DateOnly(d), id)
	}
	if dropped > 0 {
		env.logger().Printf("[WARN] job=DiasFestivos dropped_invalid_dates=%d", dropped)
	}
	out, _ = out.Distinct("Fecha")
	return env.write(ctx, "DiasFestivos", out, export.Target{Path: FileDiasFestivos})
}

// diasCapacidad normalizes the capacity working-days catalog.
func diasCapacidad(ctx context.Context, env *Env) error {
	raw, err := env.requireSource(ctx, config.SourceCapacidad)
	if err != nil {
		return err
	}
	spec, err := env.spec(config.SourceCapacidad)
	if err != nil {
		return err
	}
	pos, err := spec.Positions("concepto", "dias")
	if err != nil {
		return err
	}
	t, err := catalog.Normalize(raw, catalog.Spec{
		Name:            config.SourceCapacidad,
		Columns:         diasColumns,
		Positions:       pos,
		ExpectedColumns: 2,
		KeyColumns:      []string{"CONCEPTO"},
	}, env.logger())
	if err != nil {
		return err
	}
	t = dropHeaderRows(t, env, "CONCEPTO")
	return env.write(ctx, "Cat_DiasLaborablesCapacidad", t, export.Target{Path: FileCapacidad})
}

// dropHeaderRows removes rows whose col repeats the header label.
func dropHeaderRows(t *table.Table, env *Env, col string) *table.Table {
	canon := env.Rules.Canonicalizer()
	hdr := canon.Canonical(env.Rules.HeaderLabel)
	return t.Filter(func(r table.Row) bool { return canon.Key(r.Get(col)) != hdr })
}

// diasLaborables merges the performance workbook with the capacity catalog.
func diasLaborables(ctx context.Context, env *Env) error {
	sheet, err := env.source(ctx, config.SourceDesempeno)
	if err != nil {
		return err
	}
	cat := env.optionalIntermediate(ctx, FileCapacidad)

	var fromSheet *table.Table
	if !sheet.Empty() {
		spec, err := env.spec(config.SourceDesempeno)
		if err != nil {
			return err
		}
		pos, err := spec.Positions("concepto", "dias")
		if err != nil {
			return err
		}
		sel, err := sheet.SelectPositions(pos, diasColumns)
		switch {
		case errors.Is(err, table.ErrColumnOutOfRange):
			env.logger().Printf("[ERROR] job=Cat_DiasLaborables source=%s: %v; using the capacity catalog alone", config.SourceDesempeno, err)
		case err != nil:
			return err
		default:
			sel = sel.Filter(func(r table.Row) bool { return !env.Rules.IsPlaceholder(r.Get("DIAS LABORABLES")) })
			fromSheet = dropHeaderRows(sel, env, "CONCEPTO").DropFirst()
		}
	}
	if !cat.Empty() && !cat.Has(diasColumns...) {
		env.logger().Printf("[WARN] catalog=%q lacks %v, ignoring it", FileCapacidad, diasColumns)
		cat = table.New()
	}
	if sheet.Empty() && cat.Empty() {
		return fmt.Errorf("%w: %s and %s", ErrEmptySource, config.SourceDesempeno, FileCapacidad)
	}

	out := table.Concat(table.New(diasColumns...), fromSheet, cat.SelectPresent(diasColumns...))
	out = mapAll(out, stripCell, diasColumns...).
		Filter(func(r table.Row) bool { return r.Get("CONCEPTO") != nil })
	out, _ = out.Distinct("CONCEPTO")
	return env.write(ctx, "Cat_DiasLaborables", out, export.Target{Path: FileDiasLaborables})
}

// extDiasLaborados unpivots the worked-days API and maps each DIAS column to
// its concept through the working-days catalog.
func extDiasLaborados(ctx context.Context, env *Env) error {
	raw, err := env.requireSource(ctx, config.SourceDiasAPI)
	if err != nil {
		return err
	}
	ids := []string{"date", "planta", "SEGMENTO"}
	isID := map[string]bool{"date": true, "planta": true, "SEGMENTO": true}

	var keep []string
	ren := map[string]string{}
	seen := map[string]bool{}
	for _, c := range raw.Columns {
		name := strings.TrimPrefix(c, "GENERAL_")
		if !isID[name] && !strings.HasPrefix(name, "DIAS") {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		keep = append(keep, c)
		if name != c {
			ren[c] = name
		}
	}
	t := raw.SelectPresent(keep...).Rename(ren)

	var dias []string
	for _, c := range t.Columns {
		if strings.HasPrefix(c, "DIAS") {
			dias = append(dias, c)
		}
	}
	if len(dias) == 0 {
		return fmt.Errorf("%s: no DIAS columns (have %v)", config.SourceDiasAPI, raw.Columns)
	}
	t = t.Ensure(nil, ids...)
	long, err := t.Melt(ids, dias, "Concepto_Dias", "Dias_Laborados", nil)
	if err != nil {
		return err
	}
	long = long.Map("Concepto_Dias", upperCell("Concepto_Dias"))

	cat, err := env.requireIntermediate(ctx, FileDiasLaborables)
	if err != nil {
		return err
	}
	if err := requireColumns(cat, FileDiasLaborables, diasColumns...); err != nil {
		return err
	}
	cat, _ = cat.Select(diasColumns...)
	cat = cat.Map("DIAS LABORABLES", upperCell("DIAS LABORABLES"))

	j, err := innerJoin(long, cat, config.SourceDiasAPI, FileDiasLaborables, table.JoinSpec{
		LeftOn:  []string{"Concepto_Dias"},
		RightOn: []string{"DIAS LABORABLES"},
		KeyFunc: env.Rules.Canonicalizer().Key,
	})
	if err != nil {
		return err
	}
	j = j.Rename(map[string]string{"CONCEPTO": "Conceptos_DiasLaborados"})
	j = j.Map("date", dateCell("date")).Map("Dias_Laborados", roundedIntCell("Dias_Laborados"))
	out, err := j.Select("date", "planta", "Conceptos_DiasLaborados", "Dias_Laborados")
	if err != nil {
		return err
	}
	out, _ = out.Distinct()
	return env.write(ctx, "Ext_DiasLaborados", out, export.Target{Path: FileDiasLaborados})
}

func clockCell(col string) func(table.Row) any {
	return func(r table.Row) any {
		if t, ok := r.Get(col).(time.Time); ok {
			return t.Format("15:04:05")
		}
		return nil
	}
}

// extAtencion shapes the customer-service API into the attention report.
func extAtencion(ctx context.Context, env *Env) error {
	raw, err := env.requireSource(ctx, config.SourceAtencionAPI)
	if err != nil {
		return err
	}
	t := raw.Ensure(nil, atencionFields...)
	t = t.Map("date", timestampCell("date")).Map("attended_at", timestampCell("attended_at"))
	t = t.Map("Hora de Inicio", clockCell("date")).
		Map("Hora de Fin", clockCell("attended_at")).
		Map("Tiempo Atencion Minutos", func(r table.Row) any {
			start, ok1 := r.Get("date").(time.Time)
			end, ok2 := r.Get("attended_at").(time.Time)
			if !ok1 || !ok2 {
				return nil
			}
			return end.Sub(start).Minutes()
		}).
		AddIndex("IndiceAtencionClientes", 1).
		Map("Fecha", dateCell("date"))

	ren := make(map[string]string, len(env.Rules.CustomerServiceRenames)+1)
	for k, v := range env.Rules.CustomerServiceRenames {
		ren[k] = v
	}
	ren["date"] = "Fecha Inicio"
	t = t.Rename(ren)
	t = t.Ensure(nil, atencionOrder...)
	t = t.Map("Calificación", roundedIntCell("Calificación"))

	out, err := t.Select(atencionOrder...)
	if err != nil {
		return err
	}
	return env.write(ctx, "Ext_AtencionClientes", out, export.Target{Path: FileAtencion, DateFormat: export.DefaultDateFormat})
}
