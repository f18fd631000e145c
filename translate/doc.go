// Package translate converts decoded WebAssembly modules into the IR.
//
// TranslateModule walks the sections of a module in canonical order and
// reports every declaration to a ModuleEnvironment. Function bodies are
// handed to the environment as FunctionBody values and translated later,
// one at a time, by a FuncTranslator:
//
//	fn := ir.NewFunction(ir.UserName(0, body.FuncIndex), sig)
//	if err := translate.NewFuncTranslator().Translate(body, fn, funcEnv); err != nil {
//		return err
//	}
//
// The FuncEnvironment decides how globals, heaps, tables and calls are
// expressed for a target. Operations a target cannot express natively are
// delegated to it as well, so unsupported features degrade to sentinel
// values instead of translation failures.
package translate
