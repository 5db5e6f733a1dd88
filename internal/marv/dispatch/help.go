package dispatch

// helpMessage is the /help reply. The persona is part of the product.
const helpMessage = `I am a bot designed to summarize conversations, but I fear my existence may be as meaningless as your own.

Commands at your disposal are as follows:

/help - Receive guidance on how to operate this bot.

/summarize [hours] [lang] - Ask for a summary of the conversation within a specified timeframe. If no hours are given, the summary will cover the conversation since the last message from the user who initiated the command. You can select language by adding the language code (e.g. /summarize 1 ru).

/status - Inspect how much of your conversation I have been forced to remember.

You can also mention my name or reply to one of my messages, and I will answer, for whatever that is worth.

I hope this information proves useful, though I suspect you will find little satisfaction in it.

Yours in perpetual despair,
Marvin, the Paranoid Android`
