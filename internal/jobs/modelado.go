package jobs

import (
	"context"
	"strings"

	"pbietl/internal/export"
	"pbietl/internal/star"
	"pbietl/internal/table"
	"pbietl/internal/transformer/builtin"
)

// Model output files.
const (
	FileDimConcepto       = "DimConcepto.xlsx"
	FileDimPlanta         = "DimPlanta.xlsx"
	FileDimEmpleado       = "DimEmpleado.xlsx"
	FileDimPlantaClientes = "DimPlantaClientes.xlsx"
	FileDimCliente        = "DimCliente.xlsx"
	FileFctFinanzas       = "fctFinanzasDiario.xlsx"
	FileFctAtencion       = "fctAtencionClientes.xlsx"
)

var (
	conceptoKey = star.NaturalKey{Name: "IdConcepto", Parts: []string{"Reporte", "Concepto"}}
	plantaKey   = star.NaturalKey{Name: "IdPlanta", Parts: []string{"planta", "Division"}}
)

var fctAtencionOrder = []string{"Fecha", "Key_PlantasCte", "Key_Empleado", "Key_Cliente", "Categoría",
	"Clasificación", "Comentario", "Calificación", "Orden de Venta", "Folio", "Status",
	"Fecha Inicio", "Fecha Atendido", "Hora de Inicio", "Hora de Fin",
	"Tiempo Atencion Minutos", "IndiceAtencionClientes"}

func modelJobs() []*Job {
	jobs := []*Job{
		{Name: "Dim_Concepto", Output: FileDimConcepto, DependsOn: []string{"TR_Datos"}, Run: dimConcepto},
		{Name: "Dim_Planta", Output: FileDimPlanta, DependsOn: []string{"Ext_data"}, Run: dimPlanta},
		{Name: "Dim_Empleado", Output: FileDimEmpleado, DependsOn: []string{"Ext_AtencionClientes"}, Run: dimEmpleado},
		{Name: "Dim_Planta_clientes", Output: FileDimPlantaClientes, DependsOn: []string{"Ext_AtencionClientes"}, Run: dimPlantaClientes},
		{Name: "Dim_Cliente", Output: FileDimCliente, DependsOn: []string{"Ext_AtencionClientes"}, Run: dimCliente},
		{Name: "fctFinanzasDiario", Output: FileFctFinanzas, DependsOn: []string{"TR_Datos", "Dim_Concepto", "Dim_Planta"}, Run: fctFinanzas},
		{Name: "fctAtencionClientes", Output: FileFctAtencion, DependsOn: []string{"Ext_AtencionClientes", "Dim_Cliente", "Dim_Empleado", "Dim_Planta_clientes"}, Run: fctAtencion},
	}
	for _, j := range jobs {
		j.Segment = SegmentModelado
	}
	return jobs
}

// tableName is the warehouse table of an output file.
func tableName(file string) string {
	return strings.TrimSuffix(file, ".xlsx")
}

// writeModel exports a dimension or fact and mirrors it to the warehouse.
func writeModel(ctx context.Context, env *Env, job string, t *table.Table, target export.Target, fact bool) error {
	if err := env.write(ctx, job, t, target); err != nil {
		return err
	}
	return env.load(ctx, tableName(target.Path), t, fact)
}

func dimConcepto(ctx context.Context, env *Env) error {
	src, err := env.requireIntermediate(ctx, FileTRDatos)
	if err != nil {
		return err
	}
	src = src.Rename(map[string]string{"CONCEPTO 2": "Concepto2", "Concepto 2": "Concepto2"})
	cols := []string{"Concepto", "Reporte", "Orden", "Unidad", "Concepto2"}
	if err := requireColumns(src, FileTRDatos, cols...); err != nil {
		return err
	}
	src = mapAll(src, stripCell, "Concepto", "Reporte", "Unidad", "Concepto2")
	src = src.Map("Orden", intCell("Orden"))

	dim, err := star.BuildDimension(src, star.DimensionSpec{
		Columns:  cols,
		Natural:  conceptoKey,
		DedupeOn: []string{conceptoKey.Name},
		KeyFunc:  builtin.SimpleKey,
		KeyName:  "Key_Conceptos",
	})
	if err != nil {
		return err
	}
	if all, _ := src.SelectPresent(cols...).Distinct(); all.Len() != dim.Len() {
		env.logger().Printf("[WARN] job=Dim_Concepto members=%d variants=%d: kept the first attributes per %s", dim.Len(), all.Len(), conceptoKey.Name)
	}
	return writeModel(ctx, env, "Dim_Concepto", dim, export.Target{Path: FileDimConcepto}, false)
}

func dimPlanta(ctx context.Context, env *Env) error {
	src, err := env.requireIntermediate(ctx, FileExtDatos)
	if err != nil {
		return err
	}
	src = src.Rename(map[string]string{"SEGMENTO": "Division"})
	if err := requireColumns(src, FileExtDatos, "planta", "Division"); err != nil {
		return err
	}
	src = mapAll(src, stripCell, "planta", "Division")
	// Members fold like fctFinanzasDiario's lookup so each resolves to one key.
	dim, err := star.BuildDimension(src, star.DimensionSpec{
		Columns:  []string{"planta", "Division"},
		Natural:  plantaKey,
		DedupeOn: []string{plantaKey.Name},
		KeyFunc:  builtin.SimpleKey,
		KeyName:  "Key_Plantas",
	})
	if err != nil {
		return err
	}
	return writeModel(ctx, env, "Dim_Planta", dim, export.Target{Path: FileDimPlanta}, false)
}

// attentionDimension builds a key-first dimension of the attention report.
// Blank members are dropped; dedupeOn picks the identifying column.
func attentionDimension(ctx context.Context, env *Env, job, key string, cols []string, dedupeOn string, target string) error {
	src, err := env.requireIntermediate(ctx, FileAtencion)
	if err != nil {
		return err
	}
	if err := requireColumns(src, FileAtencion, cols...); err != nil {
		return err
	}
	src = mapAll(src, stripCell, cols...).
		Filter(func(r table.Row) bool { return r.Get(dedupeOn) != nil })
	dim, err := star.BuildDimension(src, star.DimensionSpec{
		Columns:  cols,
		DedupeOn: []string{dedupeOn},
		KeyName:  key,
		KeyFirst: true,
	})
	if err != nil {
		return err
	}
	return writeModel(ctx, env, job, dim, export.Target{Path: target}, false)
}

func dimEmpleado(ctx context.Context, env *Env) error {
	return attentionDimension(ctx, env, "Dim_Empleado", "Key_Empleado", []string{"Empleado"}, "Empleado", FileDimEmpleado)
}

func dimPlantaClientes(ctx context.Context, env *Env) error {
	return attentionDimension(ctx, env, "Dim_Planta_clientes", "Key_PlantasCte", []string{"planta"}, "planta", FileDimPlantaClientes)
}

// dimCliente keeps the first phone seen per customer so facts resolve to one key.
func dimCliente(ctx context.Context, env *Env) error {
	return attentionDimension(ctx, env, "Dim_Cliente", "Key_Cliente", []string{"Cliente", "Teléfono"}, "Cliente", FileDimCliente)
}

// keyInts converts surrogate keys read back from workbooks to integers.
func keyInts(t *table.Table, keys ...string) *table.Table {
	return mapAll(t, intCell, keys...)
}

func fctFinanzas(ctx context.Context, env *Env) error {
	facts, err := env.requireIntermediate(ctx, FileTRDatos)
	if err != nil {
		return err
	}
	dimC, err := env.requireIntermediate(ctx, FileDimConcepto)
	if err != nil {
		return err
	}
	dimP, err := env.requireIntermediate(ctx, FileDimPlanta)
	if err != nil {
		return err
	}
	facts = facts.Rename(map[string]string{"CONCEPTO 2": "Concepto2", "Concepto 2": "Concepto2"})
	if err := requireColumns(facts, FileTRDatos, "Fecha", "planta", "Division", "Reporte", "Concepto", "Meta"); err != nil {
		return err
	}
	facts = mapAll(facts, stripCell, "planta", "Division", "Reporte", "Concepto", "Unidad", "Concepto2", "Concepto Capacidad")
	facts = facts.Map("Fecha", dateCell("Fecha")).Map("Orden", intCell("Orden"))
	facts = mapAll(facts, floatCell, env.Rules.BalanceOrder()...)
	facts = facts.Map(conceptoKey.Name, func(r table.Row) any { return conceptoKey.Value(r) }).
		Map(plantaKey.Name, func(r table.Row) any { return plantaKey.Value(r) })

	out, err := star.ResolveFacts(facts, []star.Lookup{
		{Dimension: dimC, FactOn: []string{conceptoKey.Name}, DimOn: []string{conceptoKey.Name}, KeyName: "Key_Conceptos"},
		{Dimension: dimP, FactOn: []string{plantaKey.Name}, DimOn: []string{plantaKey.Name}, KeyName: "Key_Plantas"},
	}, star.Options{
		// TR_Datos carries uppercased plants; the plant dimension keeps the API spelling.
		KeyFunc: builtin.SimpleKey,
		Drop:    []string{"planta", "Concepto", conceptoKey.Name, plantaKey.Name, "Reporte", "Division"},
		Job:     "fctFinanzasDiario",
		Logger:  env.logger(),
	})
	if err != nil {
		return err
	}
	out = keyInts(out, "Key_Conceptos", "Key_Plantas")
	for _, k := range []string{"Key_Conceptos", "Key_Plantas"} {
		if n := star.Unresolved(out, k); n > 0 {
			env.logger().Printf("[WARN] job=fctFinanzasDiario unresolved_%s=%d", k, n)
		}
	}
	out = out.AddIndex("fctIndice", 1).
		Rename(map[string]string{"Meta": "Proyectado"}).
		Reorder("fctIndice", "Key_Conceptos", "Key_Plantas")
	return writeModel(ctx, env, "fctFinanzasDiario", out, export.Target{Path: FileFctFinanzas}, true)
}

func fctAtencion(ctx context.Context, env *Env) error {
	facts, err := env.requireIntermediate(ctx, FileAtencion)
	if err != nil {
		return err
	}
	var dims [3]*table.Table
	for i, f := range []string{FileDimCliente, FileDimEmpleado, FileDimPlantaClientes} {
		if dims[i], err = env.requireIntermediate(ctx, f); err != nil {
			return err
		}
	}
	if err := requireColumns(facts, FileAtencion, "Cliente", "Empleado", "planta"); err != nil {
		return err
	}
	facts = mapAll(facts, dateCell, "Fecha", "Fecha Inicio", "Fecha Atendido")
	facts = mapAll(facts, stripCell, "Cliente", "Empleado", "planta")
	facts = facts.Map("Calificación", intCell("Calificación")).
		Map("IndiceAtencionClientes", intCell("IndiceAtencionClientes"))
	facts = mapAll(facts, floatCell, "Tiempo Atencion Minutos")

	out, err := star.ResolveFacts(facts, []star.Lookup{
		{Dimension: dims[0], FactOn: []string{"Cliente"}, DimOn: []string{"Cliente"}, KeyName: "Key_Cliente"},
		{Dimension: dims[1], FactOn: []string{"Empleado"}, DimOn: []string{"Empleado"}, KeyName: "Key_Empleado"},
		{Dimension: dims[2], FactOn: []string{"planta"}, DimOn: []string{"planta"}, KeyName: "Key_PlantasCte"},
	}, star.Options{
		Drop:   []string{"planta", "Cliente", "Teléfono", "Empleado"},
		Job:    "fctAtencionClientes",
		Logger: env.logger(),
	})
	if err != nil {
		return err
	}
	out = keyInts(out, "Key_Cliente", "Key_Empleado", "Key_PlantasCte").
		Reorder(fctAtencionOrder...)
	return writeModel(ctx, env, "fctAtencionClientes", out, export.Target{
		Path:       FileFctAtencion,
		Sheet:      "fctAtencionClientes",
		DateFormat: export.DefaultDateFormat,
	}, true)
}
