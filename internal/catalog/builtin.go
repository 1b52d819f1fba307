package catalog

// Builtin returns the entity set for the municipal investment dataset: budget
// movements and execution keyed by project (bpin) and reporting period,
// reference dimensions, project units, plan-of-action product tracking, and
// SECOP contract records.
func Builtin() *Catalog {
	return &Catalog{Entities: []Entity{
		dimension("centros_gestores", "cod_centro_gestor", "nombre_centro_gestor"),
		dimension("programas", "cod_programa", "nombre_programa"),
		dimension("areas_funcionales", "cod_area_funcional", "nombre_area_funcional"),
		dimension("propositos", "cod_proposito", "nombre_proposito"),
		dimension("retos", "cod_reto", "nombre_reto"),
		{
			Name: "movimientos_presupuestales",
			Fields: []Field{
				id("bpin"),
				bounded("periodo_corte", 50),
				money("ppto_inicial"),
				accum("adiciones"),
				accum("reducciones"),
				money("ppto_modificado"),
			},
			PrimaryKey: []string{"bpin", "periodo_corte"},
		},
		{
			Name: "ejecucion_presupuestal",
			Fields: []Field{
				id("bpin"),
				bounded("periodo_corte", 50),
				accum("ejecucion"),
				accum("pagos"),
				money("saldos_cdp"),
				accum("total_acumul_obligac"),
				accum("total_acumulado_cdp"),
				accum("total_acumulado_rpc"),
			},
			PrimaryKey: []string{"bpin", "periodo_corte"},
		},
		{
			Name: "seguimiento_productos_pa",
			Fields: []Field{
				id("bpin"),
				id("cod_producto"),
				bounded("periodo_corte", 7),
				id("cod_producto_mga"),
				bounded("nombre_producto", 500),
				bounded("tipo_meta_producto", 50),
				text("descripcion_avance_producto"),
				measure("cantidad_programada_producto"),
				measure("ponderacion_producto"),
				measure("avance_producto"),
				measure("ejecucion_fisica_producto"),
				measure("avance_real_producto"),
				measure("avance_producto_acumulado"),
				accum("ejecucion_ppto_producto"),
				bounded("archivo_origen", 255),
			},
			PrimaryKey: []string{"bpin", "cod_producto", "periodo_corte"},
		},
		projectUnits("unidades_proyecto_equipamientos", nil),
		projectUnits("unidades_proyecto_vial", []Field{
			bounded("id_via", 50),
			bounded("unidad_medicion", 50),
			measure("longitud_proyectada"),
			measure("longitud_ejecutada"),
		}),
		{
			Name: "contratos",
			Fields: []Field{
				id("bpin"),
				bounded("cod_contrato", 100),
				text("nombre_proyecto"),
				text("descripcion_contrato"),
				bounded("estado_contrato", 50),
				bounded("codigo_proveedor", 50),
				text("proveedor"),
				text("url_contrato"),
				date("fecha_actualizacion"),
			},
			PrimaryKey: []string{"bpin", "cod_contrato"},
		},
		{
			Name: "contratos_valores",
			Fields: []Field{
				id("bpin"),
				bounded("cod_contrato", 100),
				money("valor_contrato"),
			},
			PrimaryKey: []string{"bpin", "cod_contrato"},
		},
	}}
}

// projectUnits builds a project-unit entity. The equipment and road variants
// share most of their shape; extra holds the variant-specific fields.
func projectUnits(name string, extra []Field) Entity {
	fields := []Field{
		id("bpin"),
		bounded("identificador", 255),
		bounded("cod_fuente_financiamiento", 50),
		measure("usuarios_beneficiarios"),
		text("dataframe"),
		bounded("nickname", 100),
		bounded("nickname_detalle", 255),
		bounded("comuna_corregimiento", 100),
		bounded("barrio_vereda", 100),
		bounded("direccion", 255),
		bounded("clase_obra", 100),
		bounded("subclase_obra", 100),
		bounded("tipo_intervencion", 100),
		text("descripcion_intervencion"),
		bounded("estado_unidad_proyecto", 50),
	}
	fields = append(fields, extra...)
	fields = append(fields,
		date("fecha_inicio_planeado"),
		date("fecha_fin_planeado"),
		date("fecha_inicio_real"),
		date("fecha_fin_real"),
		flag("es_centro_gravedad"),
		money("ppto_base"),
		accum("pagos_realizados"),
		measure("avance_fisico_obra"),
		measure("ejecucion_financiera_obra"),
	)
	return Entity{Name: name, Fields: fields, PrimaryKey: []string{"bpin"}}
}

// dimension builds a two-column code/name reference entity.
func dimension(name, codeField, nameField string) Entity {
	return Entity{
		Name: name,
		Fields: []Field{
			id(codeField),
			{Name: nameField, Type: FreeText, Required: true},
		},
		PrimaryKey: []string{codeField},
	}
}

func id(name string) Field      { return Field{Name: name, Type: IntegerIdentifier} }
func text(name string) Field    { return Field{Name: name, Type: FreeText} }
func date(name string) Field    { return Field{Name: name, Type: Date} }
func flag(name string) Field    { return Field{Name: name, Type: BooleanFlag} }
func money(name string) Field   { return Field{Name: name, Type: MonetaryAmount} }
func measure(name string) Field { return Field{Name: name, Type: DecimalMeasure} }

func accum(name string) Field {
	return Field{Name: name, Type: MonetaryAmount, Accumulative: true}
}

func bounded(name string, max int) Field {
	return Field{Name: name, Type: BoundedText, MaxLength: max}
}
