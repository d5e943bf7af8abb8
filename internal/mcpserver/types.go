package mcpserver

// NoteTypes describes the note shapes for LLM consumers.
const NoteTypes = `# Scribe Note Types

Every note has an id, title, content, content_type, format and timestamps.
The content_type says where the note came from and is never editable.

| content_type | Label | Editable | Extra fields |
|---|---|---|---|
| manual | Manual Note | yes | |
| pdf_summary | PDF Summary | yes | source_document |
| voice_transcription | Voice Note | yes | source_audio, audio_size, transcript |
| youtube_summary | YouTube Summary | no | source_video_id |
| youtube_reference | YouTube Reference | no | source_video_id (no body) |

## Rules

1. create_note always makes a manual note. Title and content must not be blank.
2. PDF summaries and voice notes are created by the backend. Use summarize_pdf
   or transcribe_audio; never create them with create_note.
3. update_note replaces both title and content.
4. delete_note needs confirm=true.
`
