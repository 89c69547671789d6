package function

// Context parameter names an expression may reference. Only the names an expression
// actually uses are bound as parameters of its routine.
const (
	ParamTimestep  = "timestep"  // current step, a struct with index, timestep, date, year, month, day, water_year, periodic_timestep
	ParamDate      = "date"      // date of the current step
	ParamDepth     = "depth"     // nesting depth of cross-resource resolution
	ParamParentKey = "parentkey" // key of the attribute whose evaluation requested this one
	ParamFlavor    = "flavor"    // output flavor requested by the caller
	ParamStartDate = "start_date"
	ParamEndDate   = "end_date"
	ParamWaterYear = "water_year"

	// ParamKwargs binds every context parameter into a dict, for expressions written as
	// GET(key, **kwargs).
	ParamKwargs = "kwargs"
)

// ContextParams is the default set of recognized context parameter names.
var ContextParams = []string{
	ParamTimestep,
	ParamDate,
	ParamDepth,
	ParamParentKey,
	ParamFlavor,
	ParamStartDate,
	ParamEndDate,
	ParamWaterYear,
}

// Builtin names injected into every routine.
const (
	BuiltinGet     = "GET"
	BuiltinGetLow  = "get"
	BuiltinReadCSV = "read_csv"
	BuiltinIsNaN   = "isnan"
	BuiltinLog     = "log"
)

// RoutineName is the name of the function expression text is wrapped into.
const RoutineName = "__routine__"
