/*
Package holyhook is an in-process inline hook engine for game server plugins.

# Underwater

 1. The first instructions of a target function are replaced by a jump to the replacement, NOP padded to a whole
    instruction boundary.
 2. The replaced instructions are relocated into a trampoline slot, followed by a jump back behind the patch.
    Calling the trampoline runs the original function.
 3. Trampoline slots live in executable pages allocated within rel32 reach of their targets.
 4. Relocation understands relative branches and RIP relative operands via [x86asm]. Prologues it can not move
    safely are refused with an unsupported instruction pattern error, nothing is written in that case.

# Notes

 1. Install and Uninstall must not run while another thread executes the target. The registry package performs them
    during its exclusive phase transitions.
 2. Hooks on one target chain: the later hook must be uninstalled first.
 3. Replacements decide about the original with a [Verdict], either [CallOriginal] or [Suppress].
 4. [Func] and [Callback] need foreign call support, currently linux and windows on amd64 or arm64.

# Packages

  - platform: platform tag and compatibility masks.
  - symbol: finds addresses in loaded libraries, by export name or byte signature.
  - registry: modules owning hooks, with the four phase lifecycle.
  - bridge: the scripting surface modules publish to.

# Inspect tool

The inspect tool checks signatures against library files before a module ships them:

	go install github.com/ZenLiuCN/holyhook/inspect@latest
	inspect scan --pattern "55 8B EC ?? ?? 56" server_srv.so

[x86asm]: https://pkg.go.dev/golang.org/x/arch/x86/x86asm
*/
package holyhook
