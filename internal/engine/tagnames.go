package engine

// Tag keys published by the process controller.
const (
	TagCycleStart    = "ciclo_iniciar"
	TagCycleFinished = "ciclo_finalizado"
	TagCyclePaused   = "ciclo_pausado"
	TagTimerMinutes  = "Timer"
	TagTimerPercent  = "Timer_Percentual"

	TagMotor1Run   = "motor_1_run"
	TagMotor1Fault = "motor_1_fault"
	TagMotor2Run   = "motor_2_run"
	TagMotor2Fault = "motor_2_fault"
	TagOzone       = "ozonio_equipamento"

	TagLevelEffluent   = "nivel_tanque_1"
	TagLevelTreatment  = "nivel_tanque_2"
	TagLevelEvaporator = "nivel_tanque_3"

	TagCapEffluent   = "cap_total_ef"
	TagCapTreatment  = "cap_total_trat"
	TagCapEvaporator = "cap_total_evap"
	TagCapShared     = "capTotal"
	TagMinTreatment  = "cap_min_trat"
	TagMinShared     = "capMin"

	TagTreatedTotal = "agua_tratada_total"
	TagEmergency    = "emergencia_fb"
)

// Capacity defaults in litres, used while the controller does not report them.
const (
	DefaultCapEffluent   = 2670
	DefaultCapTreatment  = 1100
	DefaultCapEvaporator = 13570
	DefaultMinTreatment  = 150
)
